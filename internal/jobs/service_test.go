package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroguide/internal/domain"
	"astroguide/internal/guidance"
	"astroguide/internal/testsupport"
)

type recordingEnqueuer struct {
	ids []string
	err error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, jobID string) error {
	if e.err != nil {
		return e.err
	}
	e.ids = append(e.ids, jobID)
	return nil
}

func newStartService(store domain.JobStore, enq Enqueuer) *Service {
	svc := NewService(store, enq, guidance.DefaultCatalog(), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestStartCreatesAndEnqueues(t *testing.T) {
	store := testsupport.NewJobStore()
	enq := &recordingEnqueuer{}
	svc := newStartService(store, enq)

	job, err := svc.Start(context.Background(), StartRequest{
		OwnerID: testOwner,
		Plan:    domain.UserPlanFree,
		Kind:    domain.JobKindDailyGuidance,
		Locale:  "en",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, testDate, job.DateKey)
	assert.Equal(t, []string{job.ID}, enq.ids)
}

func TestStartReusesActiveJob(t *testing.T) {
	store := testsupport.NewJobStore()
	enq := &recordingEnqueuer{}
	svc := newStartService(store, enq)
	req := StartRequest{OwnerID: testOwner, Kind: domain.JobKindDailyGuidance, DateKey: testDate}

	first, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Start(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Len())
	assert.Len(t, enq.ids, 1)

	_, err = store.Update(context.Background(), first.ID, domain.JobUpdate{Status: domain.JobStatusFailed, ErrorMessage: "boom"})
	require.NoError(t, err)
	third, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID, "a terminal job is not reused")
}

func TestStartChecksPlan(t *testing.T) {
	svc := newStartService(testsupport.NewJobStore(), &recordingEnqueuer{})

	_, err := svc.Start(context.Background(), StartRequest{OwnerID: testOwner, Plan: domain.UserPlanFree, Kind: domain.JobKindNatalChartPro})
	assert.ErrorIs(t, err, domain.ErrUnsupportedPlan)

	_, err = svc.Start(context.Background(), StartRequest{OwnerID: testOwner, Plan: domain.UserPlanPro, Kind: domain.JobKindNatalChartPro})
	assert.NoError(t, err)
}

func TestStartRejectsBadInput(t *testing.T) {
	svc := newStartService(testsupport.NewJobStore(), &recordingEnqueuer{})

	_, err := svc.Start(context.Background(), StartRequest{Kind: domain.JobKindDailyGuidance})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Start(context.Background(), StartRequest{OwnerID: testOwner, Kind: domain.JobKindDailyGuidance, DateKey: "yesterday"})
	assert.ErrorIs(t, err, domain.ErrInvalidDateKey)

	_, err = svc.Start(context.Background(), StartRequest{OwnerID: testOwner, Kind: "HOROSCOPE"})
	assert.ErrorIs(t, err, domain.ErrUnknownJobKind)
}

func TestStartEnqueueFailureMarksFailed(t *testing.T) {
	store := testsupport.NewJobStore()
	svc := newStartService(store, &recordingEnqueuer{err: errors.New("redis: connection refused")})

	job, err := svc.Start(context.Background(), StartRequest{OwnerID: testOwner, Kind: domain.JobKindDailyGuidance})
	require.ErrorIs(t, err, domain.ErrQueueUnavailable)
	require.NotNil(t, job)

	got, getErr := store.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection refused")
}

func TestGetHidesOtherOwnersJobs(t *testing.T) {
	store := testsupport.NewJobStore()
	svc := newStartService(store, &recordingEnqueuer{})
	job, err := svc.Start(context.Background(), StartRequest{OwnerID: testOwner, Kind: domain.JobKindDailyGuidance})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), testOwner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = svc.Get(context.Background(), "U2", job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
