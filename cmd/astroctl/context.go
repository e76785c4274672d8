package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"astroguide/internal/adapter/repo"
	"astroguide/internal/domain"
	"astroguide/internal/infra"
	"astroguide/internal/jobs"
)

// stores bundles what the inspection commands read and write.
type stores struct {
	jobs     domain.JobStore
	guidance domain.GuidanceStore
	locker   jobs.Locker
	close    func()
}

type commandContext struct {
	configOnce sync.Once
	config     *infra.Config
	configErr  error

	logger zerolog.Logger

	// open is replaced in tests with in-memory stores.
	open func(ctx context.Context, cfg *infra.Config) (*stores, error)
}

func newCommandContext() *commandContext {
	return &commandContext{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
		open:   openPostgresStores,
	}
}

func (c *commandContext) ensureConfig() (*infra.Config, error) {
	c.configOnce.Do(func() {
		_ = godotenv.Load()
		c.config, c.configErr = infra.LoadConfig()
	})
	return c.config, c.configErr
}

func (c *commandContext) withStores(ctx context.Context, fn func(*stores) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	s, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}
	if s.close != nil {
		defer s.close()
	}
	return fn(s)
}

func openPostgresStores(ctx context.Context, cfg *infra.Config) (*stores, error) {
	logger := infra.NewLogger(cfg, "astroctl")
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	runner := infra.NewSQLRunner(pool, logger)
	s := &stores{
		jobs:     repo.NewJobRepository(runner),
		guidance: repo.NewGuidanceRepository(runner),
		close:    pool.Close,
	}
	// The sweep lock is best effort from the CLI; without Redis it runs unlocked.
	if client, err := infra.NewRedisClient(ctx, cfg); err == nil {
		s.locker = jobs.NewRedisLocker(client)
		s.close = func() {
			_ = client.Close()
			pool.Close()
		}
	} else {
		logger.Warn().Err(err).Msg("astroctl: redis unavailable, sweeping without lock")
	}
	return s, nil
}
