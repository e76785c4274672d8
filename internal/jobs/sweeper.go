package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"astroguide/internal/domain"
)

// StuckJobMessage is the error message stored on jobs failed by the sweep.
const StuckJobMessage = "job exceeded running timeout"

const sweepLockKey = "astroguide:lock:generation-sweep"

// Locker guards a sweep against concurrent runs on other replicas.
type Locker interface {
	// Acquire returns a release func when the lock was taken, nil when another
	// holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Sweeper fails jobs left RUNNING for longer than a timeout, e.g. after a
// worker crash mid-execution.
type Sweeper struct {
	store   domain.JobStore
	timeout time.Duration
	locker  Locker
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSweeper returns a sweeper. A zero timeout disables scheduled sweeps; a nil
// locker runs without cross-replica locking.
func NewSweeper(store domain.JobStore, timeout time.Duration, locker Locker, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		timeout: timeout,
		locker:  locker,
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether a stuck timeout was configured.
func (s *Sweeper) Enabled() bool {
	return s.timeout > 0
}

// Sweep fails jobs stuck longer than the configured timeout. It does nothing
// when the sweeper is disabled.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	if !s.Enabled() {
		return nil, nil
	}
	return s.SweepOlderThan(ctx, s.timeout)
}

// SweepOlderThan fails RUNNING jobs whose last update is older than age.
func (s *Sweeper) SweepOlderThan(ctx context.Context, age time.Duration) ([]string, error) {
	if age <= 0 {
		return nil, fmt.Errorf("sweep age must be positive, got %s", age)
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, sweepLockKey, max(age, time.Minute))
		if err != nil {
			return nil, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if release == nil {
			s.logger.Debug().Msg("sweep: another replica holds the lock")
			return nil, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Msg("sweep: release lock failed")
			}
		}()
	}

	cutoff := s.now().Add(-age)
	ids, err := s.store.FailStuck(ctx, cutoff, StuckJobMessage)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.logger.Warn().Strs("job_ids", ids).Time("cutoff", cutoff).Msg("sweep: failed stuck jobs")
	}
	return ids, nil
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a SETNX lock with an owner token.
type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}, nil
}

// NewSweepScheduler registers the periodic sweep task. The caller starts and
// shuts down the returned scheduler.
func NewSweepScheduler(redisOpt asynq.RedisConnOpt, schedule string, logger zerolog.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		LogLevel: asynq.InfoLevel,
		Logger:   NewAsynqLogger(logger),
	})
	task := asynq.NewTask(TaskSweep, nil,
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
		asynq.Retention(time.Hour),
	)
	entryID, err := scheduler.Register(schedule, task)
	if err != nil {
		return nil, fmt.Errorf("register sweep schedule %q: %w", schedule, err)
	}
	logger.Info().Str("schedule", schedule).Str("entry_id", entryID).Msg("sweep scheduled")
	return scheduler, nil
}

var _ Locker = (*RedisLocker)(nil)
