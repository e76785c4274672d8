package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"astroguide/internal/domain"
)

// Enqueuer hands a job to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Entitlements reports which plan a kind requires.
type Entitlements interface {
	RequiredPlan(kind domain.JobKind) (domain.UserPlan, error)
}

// StartRequest asks for a resource to be generated.
type StartRequest struct {
	OwnerID string
	Plan    domain.UserPlan
	Kind    domain.JobKind
	DateKey string
	Locale  string
}

// Service creates and enqueues jobs.
type Service struct {
	store        domain.JobStore
	enqueuer     Enqueuer
	entitlements Entitlements
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(store domain.JobStore, enqueuer Enqueuer, entitlements Entitlements, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		enqueuer:     enqueuer,
		entitlements: entitlements,
		logger:       logger,
		now:          time.Now,
	}
}

// Start returns the active job for the request's (owner, kind, date) when one
// exists, otherwise it creates a PENDING job and enqueues it. A job whose
// enqueue fails is marked FAILED and returned alongside ErrQueueUnavailable.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.GenerationJob, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	required, err := s.entitlements.RequiredPlan(req.Kind)
	if err != nil {
		return nil, err
	}
	if !req.Plan.Satisfies(required) {
		return nil, fmt.Errorf("%w: %s requires %s", domain.ErrUnsupportedPlan, req.Kind, required)
	}
	dateKey, err := domain.ParseDateKey(req.DateKey, s.now())
	if err != nil {
		return nil, err
	}

	key := domain.NaturalKey{OwnerID: req.OwnerID, Kind: req.Kind, DateKey: dateKey}
	active, err := s.store.FindActive(ctx, key)
	switch {
	case err == nil:
		s.logger.Debug().Str("job_id", active.ID).Str("key", key.String()).Msg("jobs: reusing active job")
		return active, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("find active job: %w", err)
	}

	job := &domain.GenerationJob{
		Kind:    req.Kind,
		OwnerID: req.OwnerID,
		DateKey: dateKey,
		Locale:  req.Locale,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.enqueuer.Enqueue(ctx, job.ID); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: enqueue failed")
		failed, updErr := s.store.Update(ctx, job.ID, domain.JobUpdate{
			Status:       domain.JobStatusFailed,
			ErrorMessage: "enqueue failed: " + err.Error(),
		})
		if updErr != nil {
			s.logger.Error().Err(updErr).Str("job_id", job.ID).Msg("jobs: mark enqueue failure failed")
			return job, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
		}
		return failed, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	s.logger.Info().Str("job_id", job.ID).Str("key", key.String()).Msg("jobs: started")
	return job, nil
}

// Get returns a job only to its owner.
func (s *Service) Get(ctx context.Context, ownerID, jobID string) (*domain.GenerationJob, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}
