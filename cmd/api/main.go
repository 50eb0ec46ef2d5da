package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imgvault/internal/cache"
	"imgvault/internal/config"
	"imgvault/internal/database"
	"imgvault/internal/handlers"
	"imgvault/internal/jobs"
	"imgvault/internal/log"
	"imgvault/internal/repository"
	"imgvault/internal/server"
	"imgvault/internal/storage"
	"imgvault/internal/transcode"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	var transcoder transcode.Transcoder
	if cfg.Transcoder.Endpoint != "" {
		transcoder = transcode.NewClient(cfg.Transcoder, logger)
	} else {
		logger.Warn().Msg("no transcoder configured, variants will be deferred")
	}

	handlerSet := handlers.NewHandlerSet(logger, dbPool, redisClient, objectStore, transcoder, cfg)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	imageRepo := repository.NewImageRepository(dbPool)
	invalidator := cache.NewInvalidator(redisClient, logger)
	sweeper := jobs.NewSweeper(imageRepo, objectStore, invalidator, logger)
	scheduler := jobs.NewScheduler(sweeper, cfg.SweepInterval, logger)
	scheduler.Start()

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
