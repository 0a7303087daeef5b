package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/mailtrail-systems/mailtrail/internal/config"
	"github.com/mailtrail-systems/mailtrail/internal/handlers"
	"github.com/mailtrail-systems/mailtrail/internal/logging"
	natssub "github.com/mailtrail-systems/mailtrail/internal/nats"
	"github.com/mailtrail-systems/mailtrail/internal/ratelimit"
	"github.com/mailtrail-systems/mailtrail/internal/repository"
	"github.com/mailtrail-systems/mailtrail/internal/server"
	"github.com/mailtrail-systems/mailtrail/internal/service"
	"github.com/mailtrail-systems/mailtrail/internal/stage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion and query service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("mailtrail"))
	logging.SetDefault(logger)

	slog.Info("Starting mailtrail",
		slog.Int("port", cfg.Server.Port),
		slog.String("bucket", cfg.Storage.Bucket),
		slog.String("log_level", cfg.Logging.Level),
	)

	if cfg.Database.MigrationsPath != "" {
		if err := runMigrations(cfg); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.URL)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	objStage, err := stage.NewS3Stage(ctx, stage.S3Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		ForcePathStyle:  cfg.Storage.ForcePathStyle,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to object stage: %w", err)
	}

	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		rl, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			log.Printf("WARNING: rate limiter unavailable, continuing without: %v", err)
		} else {
			limiter = rl
			log.Printf("Rate limiting enabled: %d requests per %s",
				cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		}
	}
	defer limiter.Close()

	ingestSvc := service.NewIngestService(
		objStage, repo, cfg.Storage.Bucket, cfg.Ingestion.DeleteAfterLoad, logger)
	querySvc := service.NewQueryService(repo, logger)

	if cfg.NATS.Enabled {
		sub, err := natssub.NewSubscriber(natssub.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.Queue,
		}, ingestSvc, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		if err := sub.Start(); err != nil {
			return fmt.Errorf("failed to subscribe to notifications: %w", err)
		}
		defer sub.Stop()
	}

	handler := handlers.New(ingestSvc, querySvc, limiter, repo)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("mailtrail listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

func runMigrations(cfg *config.Config) error {
	slog.Info("Running database migrations",
		slog.String("path", cfg.Database.MigrationsPath))

	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
