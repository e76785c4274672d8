package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"astroguide/internal/adapter/repo"
	"astroguide/internal/domain"
	"astroguide/internal/guidance"
	"astroguide/internal/infra"
	"astroguide/internal/jobs"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobStore := repo.NewJobRepository(runner)

	writer := guidance.Writer(guidance.NewStaticWriter())
	if key := strings.TrimSpace(cfg.OpenAIAPIKey); key != "" {
		openai, err := guidance.NewOpenAIWriter(guidance.OpenAIOptions{
			APIKey:       key,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   &http.Client{Timeout: 60 * time.Second},
			OnFallback: func(reason string, err error) {
				logger.Warn().Err(err).Str("reason", reason).Msg("worker: openai unavailable, using static writer")
			},
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure openai writer")
		}
		writer = openai
	} else {
		logger.Warn().Msg("worker: OPENAI_API_KEY missing, using static guidance writer")
	}

	docs, err := guidance.NewService(guidance.Options{
		Store:  repo.NewGuidanceRepository(runner),
		Writer: writer,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure guidance service")
	}

	materializers := make(map[domain.JobKind]jobs.Materializer)
	for _, kind := range docs.Catalog().Kinds() {
		m, err := docs.Materializer(kind)
		if err != nil {
			logger.Fatal().Err(err).Str("kind", string(kind)).Msg("worker: no materializer")
		}
		materializers[kind] = m
	}
	orchestrator := jobs.NewOrchestrator(jobStore, docs, materializers, logger)

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer redisClient.Close()
	sweeper := jobs.NewSweeper(jobStore, cfg.JobStuckTimeout, jobs.NewRedisLocker(redisClient), logger)

	redisOpt, err := infra.AsynqRedisOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid redis configuration")
	}

	workerPool, err := jobs.NewWorkerPool(redisOpt, orchestrator, sweeper, jobs.WorkerPoolOptions{
		Concurrency: cfg.WorkerConcurrency,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pool")
	}
	if err := workerPool.Start(); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start")
	}
	defer workerPool.Shutdown()

	if sweeper.Enabled() {
		scheduler, err := jobs.NewSweepScheduler(redisOpt, cfg.JobSweepSchedule, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to schedule sweep")
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to start sweep scheduler")
		}
		defer scheduler.Shutdown()
	} else {
		logger.Info().Msg("worker: JOB_STUCK_TIMEOUT not set, stuck job sweep disabled")
	}

	logger.Info().Msg("worker: started")
	<-ctx.Done()
	logger.Info().Msg("worker: stopping")
}
