package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/prequery/prequery-preprocess/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

// DefaultFile is the database file name inside the data directory.
const DefaultFile = "history.db"

// timeLayout has a fixed width so stored timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ensure Store implements the interface.
var _ driven.HistoryStore = (*Store)(nil)

// Store is a SQLite-backed run history.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the database location used when none is configured.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("getting cache directory: %w", err)
	}
	return filepath.Join(dir, "prequery-preprocess", DefaultFile), nil
}

// NewStore opens (and if necessary creates) the history database at path.
// An empty path selects DefaultPath.
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// jobs record concurrently; one connection serialises the writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// RecordRun stores a finished run together with its resolutions.
// A run without an ID is assigned a fresh one.
func (s *Store) RecordRun(ctx context.Context, summary *domain.RunSummary, results []domain.Resolution) error {
	if summary.RunID == "" {
		summary.RunID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var errMsg sql.NullString
	if summary.Err != nil {
		errMsg = sql.NullString{String: summary.Err.Error(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, job, state, started_at, ended_at, declared, unique_ids,
			succeeded, failed, cancelled, reused, evicted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, summary.RunID, summary.Job, string(summary.State),
		formatTime(summary.StartedAt), formatTime(summary.EndedAt),
		summary.Declared, summary.Unique, summary.Succeeded, summary.Failed,
		summary.Cancelled, summary.Reused, summary.Evicted, errMsg)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO resolutions (run_id, query_id, kind, status, url, path, params, hash,
			size, content_type, resolved_at, failure_kind, failure_message, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing resolution insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		var failureKind, failureMsg sql.NullString
		if r.Failure != nil {
			failureKind = sql.NullString{String: string(r.Failure.Kind), Valid: true}
			failureMsg = sql.NullString{String: r.Failure.Message, Valid: true}
		}
		var resolvedAt sql.NullString
		if !r.ResolvedAt.IsZero() {
			resolvedAt = sql.NullString{String: formatTime(r.ResolvedAt), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, summary.RunID, r.QueryID, r.Kind, string(r.Status),
			nullString(r.URL), nullString(r.Path), nullString(r.Params), nullString(r.Hash),
			r.Size, nullString(r.ContentType), resolvedAt, failureKind, failureMsg, r.Attempts)
		if err != nil {
			return fmt.Errorf("inserting resolution %s: %w", r.QueryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, with their failures.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, state, started_at, ended_at, declared, unique_ids,
			succeeded, failed, cancelled, reused, evicted, error
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var (
			run            domain.RunSummary
			state          string
			started, ended string
			errMsg         sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.Job, &state, &started, &ended,
			&run.Declared, &run.Unique, &run.Succeeded, &run.Failed, &run.Cancelled,
			&run.Reused, &run.Evicted, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.State = domain.PipelineState(state)
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.EndedAt, err = parseTime(ended); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			run.Err = errors.New(errMsg.String)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		failures, err := s.failures(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Failures = failures
	}
	return runs, nil
}

// failures loads the failed and cancelled resolutions of a run in canonical order.
func (s *Store) failures(ctx context.Context, runID string) ([]domain.Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_id, kind, status, url, path, params, failure_kind, failure_message, attempts
		FROM resolutions
		WHERE run_id = ? AND status != ?
		ORDER BY query_id
	`, runID, string(domain.StatusOK))
	if err != nil {
		return nil, fmt.Errorf("querying resolutions: %w", err)
	}
	defer rows.Close()

	var out []domain.Resolution
	for rows.Next() {
		var (
			r                       domain.Resolution
			status                  string
			url, path, params       sql.NullString
			failureKind, failureMsg sql.NullString
		)
		if err := rows.Scan(&r.QueryID, &r.Kind, &status, &url, &path, &params,
			&failureKind, &failureMsg, &r.Attempts); err != nil {
			return nil, fmt.Errorf("scanning resolution: %w", err)
		}
		r.Status = domain.Status(status)
		r.URL, r.Path, r.Params = url.String, path.String, params.String
		if failureKind.Valid {
			r.Failure = &domain.Failure{Kind: domain.FailureKind(failureKind.String), Message: failureMsg.String}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
