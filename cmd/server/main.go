package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"medprep/internal/config"
	"medprep/internal/database"
	"medprep/internal/events"
	"medprep/internal/guard"
	"medprep/internal/handlers"
	"medprep/internal/repository"
	"medprep/internal/security"
	"medprep/internal/service"
	"medprep/migrations"
)

// reminderWindow is how far ahead a reminder looks for due sessions
const reminderWindow = 24 * time.Hour

func main() {
	// Load configuration
	cfg := config.Load()
	setupLogging(cfg)

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established", "type", cfg.DatabaseType)

	var migrationFiles fs.FS = migrations.FS
	if cfg.MigrationsPath != "" {
		migrationFiles = os.DirFS(cfg.MigrationsPath)
	}
	if err := db.RunMigrations(migrationFiles); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations completed successfully")

	sources, closeSources, err := activitySources(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSources()

	// Initialize services
	reviewService := service.NewReviewService(db)
	streakService := service.NewStreakService(db, sources)

	if cfg.StreakGuard == "redis" {
		dayGuard, err := guard.NewRedisDayGuard(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer dayGuard.Close()
		streakService.SetGuard(dayGuard)
		slog.Info("streak day guard enabled", "redis", cfg.RedisAddr)
	}

	publisher, err := events.NewEventPublisher(cfg.RabbitMQURI)
	if err != nil {
		return err
	}
	defer publisher.Close()
	streakService.SetPublisher(publisher)

	consumer, err := events.NewEventConsumer(cfg.RabbitMQURI, streakService)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	defer consumer.Close()

	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL)
	if err != nil {
		return err
	}
	var reminders *service.ReminderService
	if cfg.EmailEnabled() {
		reminders = service.NewReminderService(
			repository.NewPreferencesRepository(db),
			repository.NewReviewRepository(db),
			emailService,
			reminderWindow,
		)
	}

	// Start background maintenance
	go runMaintenance(ctx, cfg.ReminderInterval, reviewService, reminders)

	limiter := security.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	// Initialize handlers
	middleware := handlers.NewMiddleware(security.NewTokenVerifier(cfg.JWTSecret), limiter)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	streakHandler := handlers.NewStreakHandler(streakService)

	// Setup routes
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, middleware, reviewHandler, streakHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", handlers.Health(db))

	// Wrap with logging middleware
	handler := handlers.Logging(mux)

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// activitySources builds the four activity sources from SQL tables or Mongo collections
func activitySources(ctx context.Context, cfg *config.Config, db *database.DB) ([]service.ActivitySource, func(), error) {
	var sources []service.ActivitySource

	switch cfg.ActivitySource {
	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				slog.Warn("failed to disconnect from mongo", "error", err)
			}
		}

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
		}

		for _, source := range repository.NewMongoActivitySources(client.Database(cfg.MongoDatabase), repository.DefaultMongoActivityLayouts()) {
			if err := source.InitializeIndexes(ctx); err != nil {
				slog.Warn("failed to create activity index", "kind", source.Kind(), "error", err)
			}
			sources = append(sources, source)
		}
		slog.Info("reading activity from mongo", "database", cfg.MongoDatabase)
		return sources, disconnect, nil

	case "sql", "":
		for _, source := range repository.NewSQLActivitySources(db) {
			sources = append(sources, source)
		}
		return sources, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported activity source: %s", cfg.ActivitySource)
	}
}

// runMaintenance periodically marks overdue sessions as missed and sends reminders
func runMaintenance(ctx context.Context, interval time.Duration, reviews *service.ReviewService, reminders *service.ReminderService) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := reviews.MarkMissed(ctx); err != nil {
			slog.Error("error marking missed review sessions", "error", err)
		}

		if reminders != nil {
			sent, err := reminders.RunOnce(ctx, time.Now())
			if err != nil {
				slog.Error("error sending review reminders", "error", err)
			} else if sent > 0 {
				slog.Info("review reminders sent", "count", sent)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
