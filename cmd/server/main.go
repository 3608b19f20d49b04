package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow-dispatch/configs"
	"github.com/maheshrc27/postflow-dispatch/internal/api"
	"github.com/maheshrc27/postflow-dispatch/internal/api/handlers"
	"github.com/maheshrc27/postflow-dispatch/internal/api/middleware"
	job "github.com/maheshrc27/postflow-dispatch/internal/jobs"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/platform"
	"github.com/maheshrc27/postflow-dispatch/internal/queue"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
	"github.com/maheshrc27/postflow-dispatch/internal/repository/memstore"
	"github.com/maheshrc27/postflow-dispatch/internal/service"
	"github.com/maheshrc27/postflow-dispatch/pkg/utils"
	"github.com/redis/go-redis/v9"
)

type stores struct {
	posts       repository.PostRepository
	events      repository.PostEventRepository
	credentials repository.CredentialRepository
	windows     repository.RateWindowRepository
	limits      repository.BrandLimitRepository
	recurrences repository.RecurrenceRepository
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	checks := map[string]handlers.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	var (
		db *sql.DB
		st stores
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory store, state is lost on restart")
		st = memoryStores(memstore.NewStore())
	default:
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		st = postgresStores(db)
		checks["postgres"] = db.PingContext
	}

	if cfg.RateWindowStore == config.WindowStoreRedis {
		st.windows = repository.NewRedisRateWindowRepository(rdb)
	}

	registry := platform.NewRegistry()
	registry.RegisterPublisher(models.DestinationFacebook, platform.NewGraphPublisher(cfg.GraphAPIURL, cfg.GraphRatePerSecond))
	registry.RegisterRefresher(models.DestinationFacebook, platform.UnsupportedRefresher{})
	registry.RegisterPublisher(models.DestinationInstagram, platform.NewInstagramPublisher(cfg.InstagramAPIURL, cfg.GraphRatePerSecond))
	registry.RegisterRefresher(models.DestinationInstagram, platform.NewInstagramRefresher(platform.DefaultInstagramAuthURL))
	registry.RegisterPublisher(models.DestinationYoutube, platform.NewYouTubePublisher())
	if cfg.GoogleClientID != "" {
		registry.RegisterRefresher(models.DestinationYoutube, platform.NewGoogleRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret))
	}
	registry.RegisterPublisher(models.DestinationTiktok, platform.NewTikTokPublisher(cfg.TikTokAPIURL))
	if cfg.TikTokClientKey != "" {
		registry.RegisterRefresher(models.DestinationTiktok, platform.NewTikTokRefresher(cfg.TikTokAPIURL, cfg.TikTokClientKey, cfg.TikTokClientSecret))
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	clock := service.SystemClock()
	p := cfg.Publishing

	dispatcher := queue.NewDispatcher(client, p.PublishTimeout)
	rateLimitService := service.NewRateLimitService(st.windows, st.limits, p.DefaultHourlyLimit, p.DefaultDailyLimit, clock)
	tokenService := service.NewTokenService(st.credentials, registry, utils.NewTokenCipher(cfg.SecretKey), clock)
	claimService := service.NewClaimService(st.posts, dispatcher, cfg.Jobs.StaleClaimTimeout, clock)
	publishService := service.NewPublishService(st.posts, registry, rateLimitService, tokenService,
		service.NewBackoff(p.BackoffBase, p.BackoffMax), p.PublishTimeout, clock)
	recurrenceService := service.NewRecurrenceService(st.recurrences, p.DefaultMaxRetries, clock)
	postService := service.NewPostService(st.posts, st.events, claimService, clock)

	// worker
	server := queue.NewServer(redisConn, p.WorkerConcurrency)
	go func() {
		log.Println("Starting the Asynq server...")
		if err := server.Run(queue.NewQueue(publishService).ServeMux()); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	// background loops
	scheduler := job.NewScheduler(ctx, log.New(os.Stdout, "cron: ", log.LstdFlags))
	loops := []struct {
		interval time.Duration
		runner   job.Runner
	}{
		{cfg.Jobs.ClaimInterval, job.NewClaimJob(claimService, cfg.Jobs.ClaimBatchSize)},
		{cfg.Jobs.RetryInterval, job.NewRetryJob(claimService, cfg.Jobs.ClaimBatchSize)},
		{cfg.Jobs.RecurrenceInterval, job.NewRecurrenceJob(recurrenceService, cfg.Jobs.RecurrenceLookahead, clock)},
		{cfg.Jobs.TokenRefreshInterval, job.NewTokenRefreshJob(tokenService)},
	}
	for _, l := range loops {
		if err := scheduler.Every(l.interval, l.runner); err != nil {
			log.Fatalf("Failed to schedule job: %v", err)
		}
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Use(logger.New())

	api.SetupRoutes(app,
		middleware.NewAuthMiddleware(cfg.JWTSecret),
		handlers.NewPostHandler(postService),
		handlers.NewHealthHandler(checks))

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, cancel, scheduler, server, db)
}

func postgresStores(db *sql.DB) stores {
	posts := repository.NewPostRepository(db)
	return stores{
		posts:       posts,
		events:      repository.NewPostEventRepository(db),
		credentials: repository.NewCredentialRepository(db),
		windows:     repository.NewRateWindowRepository(db),
		limits:      repository.NewBrandLimitRepository(db),
		recurrences: repository.NewRecurrenceRepository(db, posts),
	}
}

func memoryStores(s *memstore.Store) stores {
	return stores{
		posts:       s.Posts(),
		events:      s.Events(),
		credentials: s.Credentials(),
		windows:     s.RateWindows(),
		limits:      s.BrandLimits(),
		recurrences: s.Recurrences(),
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, cancel context.CancelFunc, scheduler *job.Scheduler, server *asynq.Server, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	cancel()
	scheduler.Stop()
	server.Shutdown()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
