package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroguide/internal/domain"
	"astroguide/internal/guidance"
	"astroguide/internal/testsupport"
)

const (
	testOwner = "U1"
	testDate  = "2026-01-06"
)

// countingWriter counts calls into the wrapped writer.
type countingWriter struct {
	inner guidance.Writer
	calls atomic.Int32
}

func (w *countingWriter) Write(ctx context.Context, req guidance.WriteRequest) (*guidance.Document, error) {
	w.calls.Add(1)
	return w.inner.Write(ctx, req)
}

type fixture struct {
	jobs     *testsupport.JobStore
	docs     *testsupport.GuidanceStore
	writer   *countingWriter
	guidance *guidance.Service
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		jobs:   testsupport.NewJobStore(),
		docs:   testsupport.NewGuidanceStore(),
		writer: &countingWriter{inner: guidance.NewStaticWriter()},
	}
	svc, err := guidance.NewService(guidance.Options{Store: f.docs, Writer: f.writer, Logger: zerolog.Nop()})
	require.NoError(t, err)
	f.guidance = svc
	f.orch = NewOrchestrator(f.jobs, svc, materializersFor(t, svc), zerolog.Nop())
	return f
}

func materializersFor(t *testing.T, svc *guidance.Service) map[domain.JobKind]Materializer {
	t.Helper()
	out := map[domain.JobKind]Materializer{}
	for _, kind := range svc.Catalog().Kinds() {
		m, err := svc.Materializer(kind)
		require.NoError(t, err)
		out[kind] = m
	}
	return out
}

func (f *fixture) createJob(t *testing.T, kind domain.JobKind) *domain.GenerationJob {
	t.Helper()
	job := &domain.GenerationJob{Kind: kind, OwnerID: testOwner, DateKey: testDate, Locale: "en"}
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func (f *fixture) requireReadyResource(t *testing.T, job *domain.GenerationJob) *domain.Guidance {
	t.Helper()
	require.Equal(t, domain.JobStatusReady, job.Status)
	require.NotEmpty(t, job.ResultRef)
	res, err := f.guidance.Get(context.Background(), job.ResultRef)
	require.NoError(t, err)
	require.True(t, res.IsReady(), "READY job must reference a READY resource")
	return res
}

type materializerFunc func(ctx context.Context, ownerID, dateKey, locale string) error

func (f materializerFunc) Ensure(ctx context.Context, ownerID, dateKey, locale string) error {
	return f(ctx, ownerID, dateKey, locale)
}

func TestExecuteGeneratesNewResource(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, domain.JobKindDailyGuidance)

	require.NoError(t, f.orch.Execute(context.Background(), job.ID))

	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	res := f.requireReadyResource(t, got)
	assert.Equal(t, testOwner, res.OwnerID)
	assert.Equal(t, testDate, res.DateKey)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusReady}, f.jobs.History(job.ID))
	assert.EqualValues(t, 1, f.writer.calls.Load())
}

func TestExecuteReconfirmsExistingResource(t *testing.T) {
	f := newFixture(t)
	f.docs.Put(domain.Guidance{
		ID:      "existing-1",
		OwnerID: testOwner,
		Kind:    domain.JobKindDailyGuidance,
		DateKey: testDate,
		Status:  domain.GuidanceStatusReady,
		Content: []byte(`{"title":"t","sections":[{"heading":"h","body":"b"}]}`),
	})
	job := f.createJob(t, domain.JobKindDailyGuidance)

	require.NoError(t, f.orch.Execute(context.Background(), job.ID))

	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	f.requireReadyResource(t, got)
	assert.Equal(t, "existing-1", got.ResultRef)
	assert.Zero(t, f.writer.calls.Load(), "existing resource must not be regenerated")
	assert.Zero(t, f.docs.Inserts())
}

func TestExecuteGeneratorFailureEndsFailed(t *testing.T) {
	f := newFixture(t)
	f.orch = NewOrchestrator(f.jobs, f.guidance, map[domain.JobKind]Materializer{
		domain.JobKindDailyGuidance: materializerFunc(func(context.Context, string, string, string) error {
			return errors.New("ephemeris service unavailable")
		}),
	}, zerolog.Nop())
	job := f.createJob(t, domain.JobKindDailyGuidance)

	require.NoError(t, f.orch.Execute(context.Background(), job.ID))

	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "ephemeris service unavailable")
	assert.Empty(t, got.ResultRef)
}

func TestExecuteUnconfirmedResourceEndsFailed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) Materializer
	}{
		{
			name: "nothing stored",
			setup: func(*fixture) Materializer {
				return materializerFunc(func(context.Context, string, string, string) error { return nil })
			},
		},
		{
			name: "lazy placeholder left pending",
			setup: func(f *fixture) Materializer {
				return materializerFunc(func(ctx context.Context, ownerID, dateKey, locale string) error {
					key := domain.NaturalKey{OwnerID: ownerID, Kind: domain.JobKindDailyGuidance, DateKey: dateKey}
					_, err := f.docs.FindOrCreate(ctx, key, locale)
					return err
				})
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.orch = NewOrchestrator(f.jobs, f.guidance, map[domain.JobKind]Materializer{
				domain.JobKindDailyGuidance: tc.setup(f),
			}, zerolog.Nop())
			job := f.createJob(t, domain.JobKindDailyGuidance)

			require.NoError(t, f.orch.Execute(context.Background(), job.ID))

			got, err := f.jobs.Get(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, got.Status)
			assert.Contains(t, got.ErrorMessage, domain.ErrConsistencyFailure.Error())
		})
	}
}

func TestExecuteConcurrentJobsShareResource(t *testing.T) {
	f := newFixture(t)
	first := f.createJob(t, domain.JobKindDailyGuidance)
	second := f.createJob(t, domain.JobKindDailyGuidance)

	var wg sync.WaitGroup
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, f.orch.Execute(context.Background(), id))
		}(id)
	}
	wg.Wait()

	a, err := f.jobs.Get(context.Background(), first.ID)
	require.NoError(t, err)
	b, err := f.jobs.Get(context.Background(), second.ID)
	require.NoError(t, err)
	f.requireReadyResource(t, a)
	f.requireReadyResource(t, b)
	assert.Equal(t, a.ResultRef, b.ResultRef)
	assert.Equal(t, 1, f.docs.Inserts())
	assert.Equal(t, 1, f.docs.MarkReadyWins())
}

func TestExecuteMissingJob(t *testing.T) {
	f := newFixture(t)
	err := f.orch.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteTerminalJobIsNoop(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.orch = NewOrchestrator(f.jobs, f.guidance, map[domain.JobKind]Materializer{
		domain.JobKindDailyGuidance: materializerFunc(func(context.Context, string, string, string) error {
			calls.Add(1)
			return nil
		}),
	}, zerolog.Nop())
	f.jobs.Put(domain.GenerationJob{ID: "done", Kind: domain.JobKindDailyGuidance, Status: domain.JobStatusFailed, ErrorMessage: "boom"})
	f.jobs.Put(domain.GenerationJob{ID: "busy", Kind: domain.JobKindDailyGuidance, Status: domain.JobStatusRunning})

	require.NoError(t, f.orch.Execute(context.Background(), "done"))
	require.NoError(t, f.orch.Execute(context.Background(), "busy"))

	assert.Zero(t, calls.Load())
	assert.Equal(t, []domain.JobStatus{domain.JobStatusFailed}, f.jobs.History("done"))
	assert.Equal(t, []domain.JobStatus{domain.JobStatusRunning}, f.jobs.History("busy"))
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, domain.JobKindDailyGuidance)
	require.NoError(t, f.orch.Execute(context.Background(), job.ID))

	updates := []domain.JobUpdate{
		{Status: domain.JobStatusFailed, ErrorMessage: "late"},
		{Status: domain.JobStatusRunning},
		{Status: domain.JobStatusReady, ResultRef: "other"},
	}
	for _, u := range updates {
		_, err := f.jobs.Update(context.Background(), job.ID, u)
		assert.ErrorIs(t, err, domain.ErrJobTerminal, "update to %s", u.Status)
	}
	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusReady, got.Status)
}

func TestExecuteTerminalWriteFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.jobs.UpdateErr = func(_ string, u domain.JobUpdate) error {
		if u.Status.IsTerminal() {
			return errors.New("connection reset")
		}
		return nil
	}
	job := f.createJob(t, domain.JobKindDailyGuidance)

	err := f.orch.Execute(context.Background(), job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.ErrorIs(t, err, ErrLeftRunning)

	// A redelivery cannot repair the job once the write path recovers.
	f.jobs.UpdateErr = nil
	require.NoError(t, f.orch.Execute(context.Background(), job.ID))
	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
}

func TestExecuteMarkRunningFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.jobs.UpdateErr = func(string, domain.JobUpdate) error { return errors.New("connection reset") }
	job := f.createJob(t, domain.JobKindDailyGuidance)

	err := f.orch.Execute(context.Background(), job.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLeftRunning)

	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}

func TestExecuteTimeoutStillEndsFailed(t *testing.T) {
	f := newFixture(t)
	f.orch = NewOrchestrator(f.jobs, f.guidance, map[domain.JobKind]Materializer{
		domain.JobKindDailyGuidance: materializerFunc(func(ctx context.Context, _, _, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}, zerolog.Nop())
	job := f.createJob(t, domain.JobKindDailyGuidance)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, f.orch.Execute(ctx, job.ID))

	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, context.DeadlineExceeded.Error())
	assert.Equal(t, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusFailed}, f.jobs.History(job.ID))
}

func TestExecuteRecoversGeneratorPanic(t *testing.T) {
	f := newFixture(t)
	f.orch = NewOrchestrator(f.jobs, f.guidance, map[domain.JobKind]Materializer{
		domain.JobKindDailyGuidance: materializerFunc(func(context.Context, string, string, string) error {
			panic("nil chart")
		}),
	}, zerolog.Nop())
	job := f.createJob(t, domain.JobKindDailyGuidance)

	require.NoError(t, f.orch.Execute(context.Background(), job.ID))

	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "nil chart")
}

func TestExecuteUnregisteredKindEndsFailed(t *testing.T) {
	f := newFixture(t)
	f.orch = NewOrchestrator(f.jobs, f.guidance, nil, zerolog.Nop())
	job := f.createJob(t, domain.JobKindOneTimeReport)

	require.NoError(t, f.orch.Execute(context.Background(), job.ID))

	got, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no materializer")
}
