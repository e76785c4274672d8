// Package testsupport holds in-memory stores used by package tests.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"astroguide/internal/domain"
)

// JobStore is a mutex-guarded domain.JobStore with the same transition guard
// as the PostgreSQL repository.
type JobStore struct {
	mu      sync.Mutex
	jobs    map[string]*domain.GenerationJob
	history map[string][]domain.JobStatus
	now     func() time.Time

	// UpdateErr, when set, is consulted before every Update. A non-nil return
	// is handed back to the caller and the row is left unchanged.
	UpdateErr func(id string, update domain.JobUpdate) error
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    map[string]*domain.GenerationJob{},
		history: map[string][]domain.JobStatus{},
		now:     time.Now,
	}
}

// SetClock replaces the clock used for created/updated timestamps.
func (s *JobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *JobStore) Create(_ context.Context, job *domain.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("%w: jobs are created pending, got %s", domain.ErrInvalidTransition, job.Status)
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	ts := s.now().UTC()
	job.CreatedAt, job.UpdatedAt = ts, ts
	stored := *job
	s.jobs[job.ID] = &stored
	s.history[job.ID] = []domain.JobStatus{job.Status}
	return nil
}

// Put stores job as-is, bypassing the transition guard. Tests use it to seed
// rows in any status.
func (s *JobStore) Put(job domain.GenerationJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	s.jobs[job.ID] = &job
	s.history[job.ID] = append(s.history[job.ID], job.Status)
}

func (s *JobStore) Get(_ context.Context, id string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *job
	return &out, nil
}

// Update fails with ctx.Err() on a done context, as a pgx round trip would.
func (s *JobStore) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.GenerationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		if err := s.UpdateErr(id, update); err != nil {
			return nil, err
		}
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, job.Status)
	}
	if !domain.CanTransition(job.Status, update.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, job.Status, update.Status)
	}
	job.Status = update.Status
	job.ResultRef = update.ResultRef
	job.ErrorMessage = update.ErrorMessage
	job.UpdatedAt = s.now().UTC()
	s.history[id] = append(s.history[id], update.Status)
	out := *job
	return &out, nil
}

func (s *JobStore) FindActive(_ context.Context, key domain.NaturalKey) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *domain.GenerationJob
	for _, job := range s.jobs {
		if job.OwnerID != key.OwnerID || job.Kind != key.Kind || job.DateKey != key.DateKey {
			continue
		}
		if job.Status.IsTerminal() {
			continue
		}
		if found == nil || job.CreatedAt.After(found.CreatedAt) {
			found = job
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	out := *found
	return &out, nil
}

func (s *JobStore) List(_ context.Context, filter domain.JobFilter) ([]domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GenerationJob
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) Stats(context.Context) (domain.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.JobStats{}
	for _, job := range s.jobs {
		if stats[job.Kind] == nil {
			stats[job.Kind] = map[domain.JobStatus]int{}
		}
		stats[job.Kind][job.Status]++
	}
	return stats, nil
}

func (s *JobStore) FailStuck(_ context.Context, olderThan time.Time, message string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, job := range s.jobs {
		if job.Status != domain.JobStatusRunning || !job.UpdatedAt.Before(olderThan) {
			continue
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
		job.UpdatedAt = s.now().UTC()
		s.history[id] = append(s.history[id], domain.JobStatusFailed)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// History returns every status the job has been stored in, oldest first.
func (s *JobStore) History(id string) []domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.JobStatus(nil), s.history[id]...)
}

// Len reports how many jobs are stored.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// GuidanceStore is a mutex-guarded domain.GuidanceStore enforcing one row per
// natural key.
type GuidanceStore struct {
	mu    sync.Mutex
	rows  map[string]*domain.Guidance
	byKey map[domain.NaturalKey]string

	inserts   int
	markReady int

	// SkipMarkReady makes MarkReady report false without touching the row,
	// as if another writer had raced ahead and then vanished.
	SkipMarkReady bool
}

func NewGuidanceStore() *GuidanceStore {
	return &GuidanceStore{
		rows:  map[string]*domain.Guidance{},
		byKey: map[domain.NaturalKey]string{},
	}
}

// Put stores g as-is and indexes it by natural key.
func (s *GuidanceStore) Put(g domain.Guidance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	s.rows[g.ID] = &g
	s.byKey[domain.NaturalKey{OwnerID: g.OwnerID, Kind: g.Kind, DateKey: g.DateKey}] = g.ID
}

func (s *GuidanceStore) GetByID(_ context.Context, id string) (*domain.Guidance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneGuidance(g), nil
}

func (s *GuidanceStore) FindByKey(_ context.Context, key domain.NaturalKey) (*domain.Guidance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneGuidance(s.rows[id]), nil
}

func (s *GuidanceStore) FindOrCreate(_ context.Context, key domain.NaturalKey, locale string) (*domain.Guidance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[key]; ok {
		return cloneGuidance(s.rows[id]), nil
	}
	now := time.Now().UTC()
	g := &domain.Guidance{
		ID:        uuid.NewString(),
		OwnerID:   key.OwnerID,
		Kind:      key.Kind,
		DateKey:   key.DateKey,
		Locale:    locale,
		Status:    domain.GuidanceStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.rows[g.ID] = g
	s.byKey[key] = g.ID
	s.inserts++
	return cloneGuidance(g), nil
}

func (s *GuidanceStore) MarkReady(_ context.Context, id, title, provider string, content []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[id]
	if !ok || s.SkipMarkReady || g.Status != domain.GuidanceStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	g.Status = domain.GuidanceStatusReady
	g.Title = title
	g.Provider = provider
	g.Content = append([]byte(nil), content...)
	g.GeneratedAt = &now
	g.UpdatedAt = now
	s.markReady++
	return true, nil
}

// Inserts reports how many placeholder rows FindOrCreate created.
func (s *GuidanceStore) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

// MarkReadyWins reports how many MarkReady calls changed a row.
func (s *GuidanceStore) MarkReadyWins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReady
}

func cloneGuidance(g *domain.Guidance) *domain.Guidance {
	out := *g
	out.Content = append([]byte(nil), g.Content...)
	if len(out.Content) == 0 {
		out.Content = nil
	}
	return &out
}

var (
	_ domain.JobStore      = (*JobStore)(nil)
	_ domain.GuidanceStore = (*GuidanceStore)(nil)
)
