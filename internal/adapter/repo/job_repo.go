package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"astroguide/internal/domain"
	"astroguide/internal/infra"
	"astroguide/internal/sqlinline"
)

const defaultListLimit = 50

// JobRepositoryPG implements domain.JobStore.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record. ID and status are assigned when empty.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("%w: jobs are created pending, got %s", domain.ErrInvalidTransition, job.Status)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		string(job.Kind),
		string(job.Status),
		job.OwnerID,
		job.DateKey,
		job.Locale,
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.GenerationJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// Update applies a status transition. The statement only matches rows in an
// allowed predecessor status; when nothing matches the current row is read to
// tell a missing job from a terminal one.
func (r *JobRepositoryPG) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.GenerationJob, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	from := make([]string, 0, 2)
	for _, s := range domain.AllowedPredecessors(update.Status) {
		from = append(from, string(s))
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QUpdateJobStatus,
		id,
		string(update.Status),
		update.ResultRef,
		update.ErrorMessage,
		from,
	))
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("update job: %w", err)
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, current.Status)
	}
	return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, update.Status)
}

// FindActive returns the newest PENDING or RUNNING job for the key.
func (r *JobRepositoryPG) FindActive(ctx context.Context, key domain.NaturalKey) (*domain.GenerationJob, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectActiveJob, key.OwnerID, string(key.Kind), key.DateKey))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select active job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first.
func (r *JobRepositoryPG) List(ctx context.Context, filter domain.JobFilter) ([]domain.GenerationJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListJobs, string(filter.Status), filter.OwnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Stats counts jobs by kind and status.
func (r *JobRepositoryPG) Stats(ctx context.Context) (domain.JobStats, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QJobStats)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := domain.JobStats{}
	for rows.Next() {
		var kind, status string
		var count int
		if err := rows.Scan(&kind, &status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		byStatus, ok := stats[domain.JobKind(kind)]
		if !ok {
			byStatus = map[domain.JobStatus]int{}
			stats[domain.JobKind(kind)] = byStatus
		}
		byStatus[domain.JobStatus(status)] = count
	}
	return stats, rows.Err()
}

// FailStuck moves RUNNING jobs last touched before olderThan to FAILED and
// returns their ids.
func (r *JobRepositoryPG) FailStuck(ctx context.Context, olderThan time.Time, message string) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QFailStuckJobs, olderThan, message)
	if err != nil {
		return nil, fmt.Errorf("fail stuck jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stuck job: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	var kind, status string
	if err := row.Scan(
		&job.ID,
		&kind,
		&status,
		&job.OwnerID,
		&job.DateKey,
		&job.Locale,
		&job.ResultRef,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)

