package domain

import (
	"context"
	"time"
)

// JobStore persists generation jobs. It carries no business logic beyond the
// terminal-immutability guard.
type JobStore interface {
	Create(ctx context.Context, job *GenerationJob) error
	Get(ctx context.Context, id string) (*GenerationJob, error)
	Update(ctx context.Context, id string, update JobUpdate) (*GenerationJob, error)
	FindActive(ctx context.Context, key NaturalKey) (*GenerationJob, error)
	List(ctx context.Context, filter JobFilter) ([]GenerationJob, error)
	Stats(ctx context.Context) (JobStats, error)
	FailStuck(ctx context.Context, olderThan time.Time, message string) ([]string, error)
}

// GuidanceStore persists generated guidance documents.
type GuidanceStore interface {
	GetByID(ctx context.Context, id string) (*Guidance, error)
	FindByKey(ctx context.Context, key NaturalKey) (*Guidance, error)
	// FindOrCreate returns the row for key, inserting a PENDING placeholder when
	// none exists. At most one row is ever created per key.
	FindOrCreate(ctx context.Context, key NaturalKey, locale string) (*Guidance, error)
	// MarkReady moves a PENDING row to READY. It reports false when the row was
	// already READY.
	MarkReady(ctx context.Context, id, title, provider string, content []byte) (bool, error)
}
