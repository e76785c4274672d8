package infra

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is what repositories need to run marked inline SQL.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrSQLMarker rejects a statement whose first line is not "--sql <uuid>".
var ErrSQLMarker = errors.New("sql marker missing or invalid")

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner strips the audit marker from each statement, runs it on the
// underlying pool and logs it under the marker with its duration. Driver
// errors come back wrapped with the marker.
type SQLRunner struct {
	db     SQLExecutor
	logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return newSQLRunner(pool, logger)
}

func newSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, body, args...)
	if err != nil {
		return tag, r.fail(marker, "exec", err)
	}
	r.logger.Debug().Str("sql", marker).Int64("rows", tag.RowsAffected()).Dur("took", time.Since(start)).Msg("sql exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return markedRow{row: r.db.QueryRow(ctx, body, args...), runner: r, marker: marker, start: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		return nil, r.fail(marker, "query", err)
	}
	r.logger.Debug().Str("sql", marker).Dur("took", time.Since(start)).Msg("sql query")
	return rows, nil
}

// fail logs err and wraps it with the marker. Cancellations are expected
// during shutdown and task timeouts, so they log at warn.
func (r *SQLRunner) fail(marker, op string, err error) error {
	level := zerolog.ErrorLevel
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		level = zerolog.WarnLevel
	}
	r.logger.WithLevel(level).Err(err).Str("sql", marker).Str("op", op).Msg("sql failed")
	return fmt.Errorf("sql %s: %w", marker, err)
}

type markedRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

// Scan passes pgx.ErrNoRows through unwrapped and unlogged; repositories map
// it to a domain not-found.
func (m markedRow) Scan(dest ...any) error {
	err := m.row.Scan(dest...)
	switch {
	case err == nil:
		m.runner.logger.Debug().Str("sql", m.marker).Dur("took", time.Since(m.start)).Msg("sql query_row")
		return nil
	case IsNoRows(err):
		return err
	default:
		return m.runner.fail(m.marker, "scan", err)
	}
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// extractMarker splits a statement into its marker uuid and the SQL body.
func extractMarker(query string) (marker, body string, err error) {
	first, rest, _ := strings.Cut(strings.TrimSpace(query), "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrSQLMarker
	}
	return strings.TrimPrefix(first, "--sql "), strings.TrimSpace(rest), nil
}

// IsNoRows reports whether err signals an empty result set.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)
