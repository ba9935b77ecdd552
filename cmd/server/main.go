package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/api"
	"github.com/Harshitk-cp/medgraph/internal/config"
	"github.com/Harshitk-cp/medgraph/internal/seed"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	var backend api.Backend
	switch config.StoreBackend() {
	case "memory":
		var revisions *store.MemoryRevisionStore
		backend, revisions = api.NewMemoryBackend()
		res, err := seed.Demo(ctx, revisions)
		if err != nil {
			logger.Fatal("failed to seed in-memory store", zap.Error(err))
		}
		logger.Info("using in-memory store with demo data",
			zap.String("entity_id", res.Drug.String()))

	default:
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			logger.Fatal("DATABASE_URL is required")
		}

		if config.AutoMigrate() {
			if err := store.MigrateUp(dbURL, config.MigrationsPath()); err != nil {
				logger.Fatal("failed to apply migrations", zap.Error(err))
			}
			logger.Info("migrations applied", zap.String("path", config.MigrationsPath()))
		}

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("connected to database")

		backend = api.NewPostgresBackend(pool, logger)
	}

	app := api.NewApp(backend, logger)
	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("model_version", config.InferenceModelVersion()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
