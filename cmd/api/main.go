package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelpress/internal/api"
	"github.com/dunamismax/pixelpress/internal/app"
	"github.com/dunamismax/pixelpress/internal/config"
	"github.com/dunamismax/pixelpress/internal/logging"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/dunamismax/pixelpress/internal/queue"
	"github.com/dunamismax/pixelpress/internal/ratelimit"
	"github.com/dunamismax/pixelpress/internal/telemetry"
	"github.com/dunamismax/pixelpress/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const serviceName = "pixelpress-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load config")
	}

	logger, logCloser, err := logging.New(cfg.Log.Logging(), serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("could not configure logging")
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing.Trace(serviceName), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()
	defer pipeline.Shutdown()

	registry := api.NewRegistry()
	application, err := app.New(ctx, cfg, logger, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not initialize application")
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn().Err(err).Msg("application close failed")
		}
	}()

	deps := api.Deps{
		Records:               application.Records,
		Params:                application.Params,
		Presets:               application.Presets,
		Batch:                 application.Batch,
		Exporter:              application.Exporter,
		RateLimitUserIDHeader: cfg.API.RateLimitHeader,
		MaxUploadBytes:        int64(cfg.API.MaxUploadMB) << 20,
		Registry:              registry,
	}

	if cfg.API.RateLimitEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewBucket(redisClient, cfg.API.RateLimitCapacity, cfg.API.RateLimitWindow)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not configure rate limiter")
		}
		deps.RateLimiter = limiter
	}

	if cfg.Queue.Enabled {
		redisOpt := cfg.Redis.ClientOpt()

		queueClient := queue.NewClient(redisOpt, cfg.Queue.Name)
		defer queueClient.Close()
		deps.Queue = queueClient

		consumer, err := worker.NewServer(logger, redisOpt, worker.Config{
			Queue:       cfg.Queue.Name,
			Concurrency: cfg.Queue.Concurrency,
			Registerer:  registry,
		}, application.Batch)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not build worker")
		}
		if err := consumer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("could not start worker")
		}
		defer consumer.Shutdown()
	}

	srv, err := api.NewServer(logger, deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not build api server")
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
}
