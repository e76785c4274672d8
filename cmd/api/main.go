package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"astroguide/internal/adapter/repo"
	"astroguide/internal/guidance"
	"astroguide/internal/http/handlers"
	httpapi "astroguide/internal/http/httpapi"
	"astroguide/internal/infra"
	"astroguide/internal/infra/geoip"
	"astroguide/internal/jobs"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if _, err := infra.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	jobStore := repo.NewJobRepository(runner)

	// The API only reads guidance; generation happens in the worker.
	docs, err := guidance.NewService(guidance.Options{
		Store:  repo.NewGuidanceRepository(runner),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure guidance service")
	}

	redisOpt, err := infra.AsynqRedisOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid redis configuration")
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	enqueuer := jobs.NewAsynqEnqueuer(queueClient, jobs.QueueOptions{
		MaxRetry: cfg.JobMaxRetry,
		Timeout:  cfg.JobTaskTimeout,
	}, logger)

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		Jobs:      jobs.NewService(jobStore, enqueuer, docs.Catalog(), logger),
		Guidance:  docs,
		JWTSecret: cfg.JWTSecret,
		Ping:      dbpool.Ping,
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		app.CountryLookup = resolver.CountryCode
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))
	logger.Info().Str("addr", server.Addr()).Msg("API listening")
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("http server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
