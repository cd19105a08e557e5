package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/semtrip/trip"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	status         TEXT    NOT NULL,
	progress       INTEGER NOT NULL DEFAULT 0,
	stage          TEXT    NOT NULL DEFAULT '',
	message        TEXT    NOT NULL DEFAULT '',
	request        TEXT    NOT NULL,
	result         TEXT,
	errors         TEXT    NOT NULL DEFAULT '[]',
	status_changes TEXT    NOT NULL DEFAULT '[]',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	completed_at   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

// SQLiteStore keeps runs in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// row is the column form of a Run.
type row struct {
	request, errors, changes []byte
	result                   sql.NullString
	completed                sql.NullInt64
}

func toRow(r *Run) (row, error) {
	var out row
	var err error
	if out.request, err = json.Marshal(r.Request); err != nil {
		return out, fmt.Errorf("marshal request: %w", err)
	}
	errs := r.Errors
	if errs == nil {
		errs = []trip.StageError{}
	}
	if out.errors, err = json.Marshal(errs); err != nil {
		return out, fmt.Errorf("marshal errors: %w", err)
	}
	changes := r.StatusChanges
	if changes == nil {
		changes = []StatusChange{}
	}
	if out.changes, err = json.Marshal(changes); err != nil {
		return out, fmt.Errorf("marshal status changes: %w", err)
	}
	if r.Result != nil {
		data, err := json.Marshal(r.Result)
		if err != nil {
			return out, fmt.Errorf("marshal result: %w", err)
		}
		out.result = sql.NullString{String: string(data), Valid: true}
	}
	if r.CompletedAt != nil {
		out.completed = sql.NullInt64{Int64: r.CompletedAt.UnixNano(), Valid: true}
	}
	return out, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, r *Run) error {
	rw, err := toRow(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, progress, stage, message, request, result, errors, status_changes, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		r.ID, string(r.Status), r.Progress, string(r.Stage), r.Message,
		string(rw.request), rw.result, string(rw.errors), string(rw.changes),
		r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano(), rw.completed)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrExists
	}
	return nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, r *Run) error {
	rw, err := toRow(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, progress = ?, stage = ?, message = ?, request = ?, result = ?,
			errors = ?, status_changes = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(r.Status), r.Progress, string(r.Stage), r.Message, string(rw.request), rw.result,
		string(rw.errors), string(rw.changes), r.UpdatedAt.UnixNano(), rw.completed, r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectRun = `SELECT id, status, progress, stage, message, request, result, errors, status_changes, created_at, updated_at, completed_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                      Run
		status, stage          string
		request, errs, changes string
		result                 sql.NullString
		created, updated       int64
		completed              sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &status, &r.Progress, &stage, &r.Message, &request, &result,
		&errs, &changes, &created, &updated, &completed); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.Stage = trip.Stage(stage)
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	if completed.Valid {
		t := time.Unix(0, completed.Int64).UTC()
		r.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(request), &r.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors of %s: %w", r.ID, err)
	}
	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	if err := json.Unmarshal([]byte(changes), &r.StatusChanges); err != nil {
		return nil, fmt.Errorf("unmarshal status changes of %s: %w", r.ID, err)
	}
	if len(r.StatusChanges) == 0 {
		r.StatusChanges = nil
	}
	if result.Valid {
		var plan trip.FinishedPlan
		if err := json.Unmarshal([]byte(result.String), &plan); err != nil {
			return nil, fmt.Errorf("unmarshal result of %s: %w", r.ID, err)
		}
		r.Result = &plan
	}
	return &r, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
