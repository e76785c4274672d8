package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const testMarker = "0b8f5a52-3a57-4a57-8d49-2c3f0f1f6a10"

type fakeExecutor struct {
	lastQuery string
	execErr   error
	rowErr    error
}

func (f *fakeExecutor) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	f.lastQuery = query
	return pgconn.NewCommandTag("UPDATE 1"), f.execErr
}

func (f *fakeExecutor) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	f.lastQuery = query
	return errorRow{err: f.rowErr}
}

func (f *fakeExecutor) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	f.lastQuery = query
	return nil, f.execErr
}

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		marker  string
		body    string
		wantErr bool
	}{
		{
			name:   "valid marker",
			query:  "--sql 0b8f5a52-3a57-4a57-8d49-2c3f0f1f6a10\nselect 1;",
			marker: "0b8f5a52-3a57-4a57-8d49-2c3f0f1f6a10",
			body:   "select 1;",
		},
		{
			name:   "leading whitespace",
			query:  "\n  --sql 0b8f5a52-3a57-4a57-8d49-2c3f0f1f6a10\nselect 1;\n",
			marker: "0b8f5a52-3a57-4a57-8d49-2c3f0f1f6a10",
			body:   "select 1;",
		},
		{name: "missing marker", query: "select 1;", wantErr: true},
		{name: "malformed marker", query: "--sql not-a-uuid\nselect 1;", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			marker, body, err := extractMarker(tc.query)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got marker %q", marker)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractMarker returned error: %v", err)
			}
			if marker != tc.marker {
				t.Fatalf("marker = %q, want %q", marker, tc.marker)
			}
			if body != tc.body {
				t.Fatalf("body = %q, want %q", body, tc.body)
			}
		})
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(pgx.ErrNoRows) {
		t.Fatal("expected pgx.ErrNoRows to be detected")
	}
	if !IsNoRows(fmt.Errorf("load job: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped pgx.ErrNoRows to be detected")
	}
	if IsNoRows(errors.New("boom")) {
		t.Fatal("unexpected match for unrelated error")
	}
}

func TestSQLRunnerExec(t *testing.T) {
	var buf bytes.Buffer
	fake := &fakeExecutor{}
	runner := newSQLRunner(fake, zerolog.New(&buf).Level(zerolog.DebugLevel))

	tag, err := runner.Exec(context.Background(), "--sql "+testMarker+"\nupdate jobs set status = $1;", "READY")
	if err != nil {
		t.Fatalf("Exec returned error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("rows affected = %d, want 1", tag.RowsAffected())
	}
	if fake.lastQuery != "update jobs set status = $1;" {
		t.Fatalf("driver saw %q, want marker stripped", fake.lastQuery)
	}
	if !strings.Contains(buf.String(), `"sql":"`+testMarker+`"`) {
		t.Fatalf("log line missing marker field: %s", buf.String())
	}

	if _, err := runner.Exec(context.Background(), "update jobs set status = $1;"); !errors.Is(err, ErrSQLMarker) {
		t.Fatalf("unmarked statement error = %v, want ErrSQLMarker", err)
	}
}

func TestSQLRunnerWrapsDriverErrors(t *testing.T) {
	tests := []struct {
		name      string
		driverErr error
		wantLevel string
	}{
		{name: "driver failure", driverErr: errors.New("connection reset"), wantLevel: `"level":"error"`},
		{name: "deadline", driverErr: context.DeadlineExceeded, wantLevel: `"level":"warn"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			runner := newSQLRunner(&fakeExecutor{execErr: tc.driverErr}, zerolog.New(&buf))

			_, err := runner.Exec(context.Background(), "--sql "+testMarker+"\nselect 1;")
			if !errors.Is(err, tc.driverErr) {
				t.Fatalf("error = %v, want wrapped %v", err, tc.driverErr)
			}
			if !strings.Contains(err.Error(), testMarker) {
				t.Fatalf("error %q does not name the statement", err)
			}
			if !strings.Contains(buf.String(), tc.wantLevel) {
				t.Fatalf("log %s missing %s", buf.String(), tc.wantLevel)
			}
		})
	}
}

func TestSQLRunnerQueryRowNoRows(t *testing.T) {
	var buf bytes.Buffer
	runner := newSQLRunner(&fakeExecutor{rowErr: pgx.ErrNoRows}, zerolog.New(&buf))

	var id string
	err := runner.QueryRow(context.Background(), "--sql "+testMarker+"\nselect id from jobs;").Scan(&id)
	if err != pgx.ErrNoRows {
		t.Fatalf("Scan error = %v, want bare pgx.ErrNoRows", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("no-rows should not log, got %s", buf.String())
	}

	err = runner.QueryRow(context.Background(), "select id from jobs;").Scan(&id)
	if !errors.Is(err, ErrSQLMarker) {
		t.Fatalf("unmarked QueryRow error = %v, want ErrSQLMarker", err)
	}
}
