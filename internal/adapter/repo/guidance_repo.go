package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"astroguide/internal/domain"
	"astroguide/internal/infra"
	"astroguide/internal/sqlinline"
)

// GuidanceRepositoryPG implements domain.GuidanceStore.
type GuidanceRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGuidanceRepository creates a guidance repository backed by PostgreSQL.
func NewGuidanceRepository(sql infra.SQLExecutor) *GuidanceRepositoryPG {
	return &GuidanceRepositoryPG{sql: sql}
}

func (r *GuidanceRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Guidance, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	g, err := scanGuidance(r.sql.QueryRow(ctx, sqlinline.QSelectGuidanceByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select guidance: %w", err)
	}
	return g, nil
}

func (r *GuidanceRepositoryPG) FindByKey(ctx context.Context, key domain.NaturalKey) (*domain.Guidance, error) {
	g, err := scanGuidance(r.sql.QueryRow(ctx, sqlinline.QSelectGuidanceByKey, key.OwnerID, string(key.Kind), key.DateKey))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select guidance by key: %w", err)
	}
	return g, nil
}

// FindOrCreate inserts a PENDING placeholder (a no-op when the key exists) and
// then reads the row back in a separate statement so a row committed by a
// concurrent caller is visible.
func (r *GuidanceRepositoryPG) FindOrCreate(ctx context.Context, key domain.NaturalKey, locale string) (*domain.Guidance, error) {
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertGuidancePlaceholder, key.OwnerID, string(key.Kind), key.DateKey, locale); err != nil {
		return nil, fmt.Errorf("insert guidance placeholder: %w", err)
	}
	return r.FindByKey(ctx, key)
}

func (r *GuidanceRepositoryPG) MarkReady(ctx context.Context, id, title, provider string, content []byte) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkGuidanceReady, id, title, provider, content)
	if err != nil {
		return false, fmt.Errorf("mark guidance ready: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanGuidance(row pgx.Row) (*domain.Guidance, error) {
	var g domain.Guidance
	var kind, status string
	var content []byte
	if err := row.Scan(
		&g.ID,
		&g.OwnerID,
		&kind,
		&g.DateKey,
		&g.Locale,
		&status,
		&g.Title,
		&content,
		&g.Provider,
		&g.GeneratedAt,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	g.Kind = domain.JobKind(kind)
	g.Status = domain.GuidanceStatus(status)
	if len(content) > 0 {
		g.Content = append([]byte(nil), content...)
	}
	return &g, nil
}

var _ domain.GuidanceStore = (*GuidanceRepositoryPG)(nil)
