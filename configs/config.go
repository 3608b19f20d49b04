package config

import (
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
	WindowStorePostgres = "postgres"
	WindowStoreRedis    = "redis"
)

type Jobs struct {
	ClaimInterval        time.Duration
	RetryInterval        time.Duration
	RecurrenceInterval   time.Duration
	RecurrenceLookahead  time.Duration
	TokenRefreshInterval time.Duration
	ClaimBatchSize       int
	StaleClaimTimeout    time.Duration
}

type Publishing struct {
	WorkerConcurrency  int
	PublishTimeout     time.Duration
	DefaultMaxRetries  int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	DefaultHourlyLimit int
	DefaultDailyLimit  int
}

type Config struct {
	Port               string
	PostgresURI        string
	RedisURI           string
	StoreDriver        string
	RateWindowStore    string
	SecretKey          string
	JWTSecret          string
	Jobs               Jobs
	Publishing         Publishing
	GraphAPIURL        string
	GraphRatePerSecond float64
	InstagramAPIURL    string
	GoogleClientID     string
	GoogleClientSecret string
	TikTokAPIURL       string
	TikTokClientKey    string
	TikTokClientSecret string
	LogLevel           string
}

func LoadConfig() *Config {
	return &Config{
		Port:            getEnv("PORT", "3000"),
		PostgresURI:     getEnv("POSTGRES_URI", ""),
		RedisURI:        getEnv("REDIS_URI", "localhost:6379"),
		StoreDriver:     getEnv("STORE_DRIVER", StoreDriverPostgres),
		RateWindowStore: getEnv("RATE_WINDOW_STORE", WindowStorePostgres),
		SecretKey:       getEnv("SECRET_KEY", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		Jobs: Jobs{
			ClaimInterval:        getEnvDuration("CLAIM_INTERVAL", time.Minute),
			RetryInterval:        getEnvDuration("RETRY_INTERVAL", time.Minute),
			RecurrenceInterval:   getEnvDuration("RECURRENCE_INTERVAL", 5*time.Minute),
			RecurrenceLookahead:  getEnvDuration("RECURRENCE_LOOKAHEAD", time.Hour),
			TokenRefreshInterval: getEnvDuration("TOKEN_REFRESH_INTERVAL", 10*time.Minute),
			ClaimBatchSize:       getEnvInt("CLAIM_BATCH_SIZE", 50),
			StaleClaimTimeout:    getEnvDuration("STALE_CLAIM_TIMEOUT", 30*time.Minute),
		},
		Publishing: Publishing{
			WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 5),
			PublishTimeout:     getEnvDuration("PUBLISH_TIMEOUT", 2*time.Minute),
			DefaultMaxRetries:  getEnvInt("DEFAULT_MAX_RETRIES", 3),
			BackoffBase:        getEnvDuration("BACKOFF_BASE", 15*time.Minute),
			BackoffMax:         getEnvDuration("BACKOFF_MAX", 24*time.Hour),
			DefaultHourlyLimit: getEnvInt("DEFAULT_HOURLY_LIMIT", 10),
			DefaultDailyLimit:  getEnvInt("DEFAULT_DAILY_LIMIT", 100),
		},
		GraphAPIURL:        getEnv("GRAPH_API_URL", "https://graph.facebook.com/v21.0"),
		GraphRatePerSecond: getEnvFloat("GRAPH_RATE_PER_SECOND", 5),
		InstagramAPIURL:    getEnv("INSTAGRAM_API_URL", "https://graph.instagram.com/v21.0"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		TikTokAPIURL:       getEnv("TIKTOK_API_URL", "https://open.tiktokapis.com"),
		TikTokClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
		TikTokClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.StoreDriver, validation.In(StoreDriverPostgres, StoreDriverMemory)),
		validation.Field(&c.PostgresURI, validation.When(c.StoreDriver == StoreDriverPostgres, validation.Required)),
		validation.Field(&c.RateWindowStore, validation.In(WindowStorePostgres, WindowStoreRedis)),
		validation.Field(&c.RedisURI, validation.Required),
		validation.Field(&c.SecretKey, validation.By(aesKeyLength)),
		validation.Field(&c.JWTSecret, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
	if err != nil {
		return err
	}

	j := &c.Jobs
	err = validation.ValidateStruct(j,
		validation.Field(&j.ClaimInterval, validation.Required),
		validation.Field(&j.RetryInterval, validation.Required),
		validation.Field(&j.RecurrenceInterval, validation.Required),
		validation.Field(&j.TokenRefreshInterval, validation.Required),
		validation.Field(&j.ClaimBatchSize, validation.Required, validation.Min(1)),
		validation.Field(&j.StaleClaimTimeout, validation.Required),
	)
	if err != nil {
		return err
	}

	p := &c.Publishing
	return validation.ValidateStruct(p,
		validation.Field(&p.WorkerConcurrency, validation.Required, validation.Min(1)),
		validation.Field(&p.PublishTimeout, validation.Required),
		validation.Field(&p.DefaultMaxRetries, validation.Min(0)),
		validation.Field(&p.BackoffBase, validation.Required),
		validation.Field(&p.BackoffMax, validation.Required, validation.Min(p.BackoffBase)),
		validation.Field(&p.DefaultHourlyLimit, validation.Required, validation.Min(1)),
		validation.Field(&p.DefaultDailyLimit, validation.Required, validation.Min(1)),
	)
}

// SecretKey seals stored OAuth tokens with AES; empty disables encryption.
func aesKeyLength(value interface{}) error {
	key, _ := value.(string)
	switch len(key) {
	case 0, 16, 24, 32:
		return nil
	}
	return validation.NewError("validation_aes_key", "must be 16, 24 or 32 bytes long")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
