package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("STORE_DRIVER", StoreDriverMemory)

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, time.Minute, cfg.Jobs.ClaimInterval)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.RecurrenceInterval)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.StaleClaimTimeout)
	assert.Equal(t, 50, cfg.Jobs.ClaimBatchSize)
	assert.Equal(t, 2*time.Minute, cfg.Publishing.PublishTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Publishing.BackoffBase)
	assert.Equal(t, 24*time.Hour, cfg.Publishing.BackoffMax)
	assert.Equal(t, 10, cfg.Publishing.DefaultHourlyLimit)
	assert.Equal(t, 100, cfg.Publishing.DefaultDailyLimit)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CLAIM_INTERVAL", "15s")
	t.Setenv("CLAIM_BATCH_SIZE", "200")
	t.Setenv("GRAPH_RATE_PER_SECOND", "2.5")
	t.Setenv("DEFAULT_MAX_RETRIES", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, 15*time.Second, cfg.Jobs.ClaimInterval)
	assert.Equal(t, 200, cfg.Jobs.ClaimBatchSize)
	assert.Equal(t, 2.5, cfg.GraphRatePerSecond)
	assert.Equal(t, 3, cfg.Publishing.DefaultMaxRetries, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres without uri", func(c *Config) { c.StoreDriver = StoreDriverPostgres; c.PostgresURI = "" }},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }},
		{"unknown window store", func(c *Config) { c.RateWindowStore = "memcached" }},
		{"short secret key", func(c *Config) { c.SecretKey = "short" }},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }},
		{"zero batch", func(c *Config) { c.Jobs.ClaimBatchSize = 0 }},
		{"backoff max below base", func(c *Config) { c.Publishing.BackoffMax = time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "jwt")
			t.Setenv("STORE_DRIVER", StoreDriverMemory)
			cfg := LoadConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsAESKeys(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("STORE_DRIVER", StoreDriverMemory)

	for _, key := range []string{"0123456789abcdef", "0123456789abcdef01234567", "0123456789abcdef0123456789abcdef"} {
		t.Setenv("SECRET_KEY", key)
		assert.NoError(t, LoadConfig().Validate(), "key of length %d", len(key))
	}
}
