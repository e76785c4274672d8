package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"astroguide/internal/domain"
)

// Executor runs one job.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// WorkerPoolOptions configures the pool.
type WorkerPoolOptions struct {
	Concurrency     int
	ShutdownTimeout time.Duration
}

// WorkerPool runs execute tasks with a bounded number of concurrent
// executions. Sweep tasks are handled too when a sweeper is given.
type WorkerPool struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

func NewWorkerPool(redisOpt asynq.RedisConnOpt, executor Executor, sweeper *Sweeper, opts WorkerPoolOptions, logger zerolog.Logger) (*WorkerPool, error) {
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("worker concurrency must be positive, got %d", opts.Concurrency)
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     opts.Concurrency,
		ShutdownTimeout: shutdown,
		ErrorHandler:    asynq.ErrorHandlerFunc(taskErrorHandler(logger)),
		Logger:          NewAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskExecute, executeHandler(executor, logger))
	if sweeper != nil {
		mux.HandleFunc(TaskSweep, sweepHandler(sweeper))
	}

	logger.Info().Int("concurrency", opts.Concurrency).Bool("sweep", sweeper != nil).Msg("worker pool configured")
	return &WorkerPool{server: server, mux: mux, logger: logger}, nil
}

// Start begins processing in the background.
func (p *WorkerPool) Start() error {
	if err := p.server.Start(p.mux); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	return nil
}

// Shutdown stops fetching new tasks and waits for running ones.
func (p *WorkerPool) Shutdown() {
	p.server.Shutdown()
	p.logger.Info().Msg("worker pool stopped")
}

func executeHandler(executor Executor, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		jobID, err := parseExecutePayload(task.Payload())
		if err != nil {
			return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := executor.Execute(ctx, jobID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Error().Str("job_id", jobID).Msg("worker: job not found")
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			if errors.Is(err, ErrLeftRunning) {
				logger.Error().Err(err).Str("job_id", jobID).Msg("worker: job left RUNNING, awaiting stuck sweep")
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

func sweepHandler(sweeper *Sweeper) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		_, err := sweeper.Sweep(ctx)
		return err
	}
}

func taskErrorHandler(logger zerolog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		taskID, _ := asynq.GetTaskID(ctx)
		logger.Error().
			Err(err).
			Str("task_type", task.Type()).
			Str("task_id", taskID).
			Int("retried", retried).
			Int("max_retry", maxRetry).
			Msg("worker: task failed")
	}
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

// NewAsynqLogger adapts logger to asynq.Logger.
func NewAsynqLogger(logger zerolog.Logger) asynq.Logger {
	return &asynqLogger{logger: logger.With().Str("component", "asynq").Logger()}
}

func (a *asynqLogger) Debug(args ...interface{}) { a.logger.Debug().Msg(fmt.Sprint(args...)) }
func (a *asynqLogger) Info(args ...interface{})  { a.logger.Info().Msg(fmt.Sprint(args...)) }
func (a *asynqLogger) Warn(args ...interface{})  { a.logger.Warn().Msg(fmt.Sprint(args...)) }
func (a *asynqLogger) Error(args ...interface{}) { a.logger.Error().Msg(fmt.Sprint(args...)) }

func (a *asynqLogger) Fatal(args ...interface{}) {
	msg := fmt.Sprint(args...)
	a.logger.Error().Msg(msg)
	panic(msg)
}
