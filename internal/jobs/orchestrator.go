// Package jobs drives generation jobs from PENDING to a terminal status.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"astroguide/internal/domain"
)

// ErrLeftRunning marks an Execute failure after the job entered RUNNING whose
// terminal status could not be written. Redelivering the task cannot help
// since Execute skips RUNNING jobs; only the stuck sweep recovers it.
var ErrLeftRunning = errors.New("job left running")

// terminalWriteTimeout bounds the READY/FAILED write, which runs detached from
// the execution context so a task timeout or shutdown still records the outcome.
const terminalWriteTimeout = 10 * time.Second

// Materializer produces the resource for one job kind. Ensure must not return
// until the resource for (owner, date) is fully generated and stored, or it has
// failed.
type Materializer interface {
	Ensure(ctx context.Context, ownerID, dateKey, locale string) error
}

// Lookup confirms that a materialized resource exists.
type Lookup interface {
	FindByOwnerAndDate(ctx context.Context, kind domain.JobKind, ownerID, dateKey string) (*domain.Guidance, error)
}

// Orchestrator executes a single job to a terminal status.
type Orchestrator struct {
	store         domain.JobStore
	lookup        Lookup
	materializers map[domain.JobKind]Materializer
	logger        zerolog.Logger
}

func NewOrchestrator(store domain.JobStore, lookup Lookup, materializers map[domain.JobKind]Materializer, logger zerolog.Logger) *Orchestrator {
	registry := make(map[domain.JobKind]Materializer, len(materializers))
	for kind, m := range materializers {
		registry[kind] = m
	}
	return &Orchestrator{
		store:         store,
		lookup:        lookup,
		materializers: registry,
		logger:        logger,
	}
}

// Execute runs job jobID. Generation errors end in FAILED and are not
// returned; an error is returned only when the job does not exist or its
// terminal status could not be written. In the latter case, once the job is
// RUNNING, the error wraps ErrLeftRunning.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	logger := o.logger.With().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("owner_id", job.OwnerID).
		Str("date_key", job.DateKey).
		Logger()

	switch job.Status {
	case domain.JobStatusReady, domain.JobStatusFailed:
		logger.Debug().Str("status", string(job.Status)).Msg("jobs: already terminal, skipping")
		return nil
	case domain.JobStatusRunning:
		logger.Warn().Msg("jobs: already running, skipping duplicate delivery")
		return nil
	}

	if _, err := o.store.Update(ctx, job.ID, domain.JobUpdate{Status: domain.JobStatusRunning}); err != nil {
		if errors.Is(err, domain.ErrJobTerminal) || errors.Is(err, domain.ErrInvalidTransition) {
			logger.Warn().Err(err).Msg("jobs: lost start race, skipping")
			return nil
		}
		logger.Error().Err(err).Msg("jobs: mark running failed")
		return o.finish(ctx, logger, job.ID, failedUpdate(fmt.Errorf("mark running: %w", err)))
	}
	logger.Info().Msg("jobs: running")

	update := domain.JobUpdate{Status: domain.JobStatusReady}
	ref, err := o.run(ctx, job)
	if err != nil {
		logger.Warn().Err(err).Msg("jobs: generation failed")
		update = failedUpdate(err)
	} else {
		update.ResultRef = ref
	}
	if err := o.finish(ctx, logger, job.ID, update); err != nil {
		return fmt.Errorf("%w: %w", ErrLeftRunning, err)
	}
	return nil
}

// run materializes the job's resource and returns the confirmed resource id.
func (o *Orchestrator) run(ctx context.Context, job *domain.GenerationJob) (ref string, err error) {
	m, ok := o.materializers[job.Kind]
	if !ok {
		return "", fmt.Errorf("%w: no materializer for %s", domain.ErrGenerationFailure, job.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			ref, err = "", fmt.Errorf("%w: panic: %v", domain.ErrGenerationFailure, r)
		}
	}()
	if err := m.Ensure(ctx, job.OwnerID, job.DateKey, job.Locale); err != nil {
		return "", err
	}

	res, err := o.lookup.FindByOwnerAndDate(ctx, job.Kind, job.OwnerID, job.DateKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: no resource for %s/%s", domain.ErrConsistencyFailure, job.OwnerID, job.DateKey)
		}
		return "", fmt.Errorf("%w: lookup: %v", domain.ErrConsistencyFailure, err)
	}
	if !res.IsReady() {
		return "", fmt.Errorf("%w: resource %s is %s", domain.ErrConsistencyFailure, res.ID, res.Status)
	}
	return res.ID, nil
}

func (o *Orchestrator) finish(ctx context.Context, logger zerolog.Logger, jobID string, update domain.JobUpdate) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if _, err := o.store.Update(writeCtx, jobID, update); err != nil {
		if errors.Is(err, domain.ErrJobTerminal) {
			logger.Warn().Err(err).Str("status", string(update.Status)).Msg("jobs: finished elsewhere")
			return nil
		}
		logger.Error().Err(err).Str("status", string(update.Status)).Msg("jobs: terminal status write failed")
		return fmt.Errorf("mark job %s %s: %w", jobID, update.Status, err)
	}
	if update.Status == domain.JobStatusFailed {
		logger.Warn().Str("error_message", update.ErrorMessage).Msg("jobs: failed")
		return nil
	}
	logger.Info().Str("result_ref", update.ResultRef).Msg("jobs: ready")
	return nil
}

func failedUpdate(err error) domain.JobUpdate {
	msg := err.Error()
	if msg == "" {
		msg = domain.ErrGenerationFailure.Error()
	}
	return domain.JobUpdate{Status: domain.JobStatusFailed, ErrorMessage: msg}
}
