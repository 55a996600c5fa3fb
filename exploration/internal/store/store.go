// Package store persists explorations. Every mutation is a guarded UPDATE:
// it only applies from the expected source status and reports whether it
// did, so concurrent writers (drive routine, session side channel) can
// never reopen or overwrite a terminal record.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/radar/dbopen"
)

// Status of an exploration.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusQueued || s == StatusRunning || s.Terminal()
}

// Exploration is one automated browser run against a URL.
type Exploration struct {
	ID             string `json:"id"`
	Domain         string `json:"domain"`
	URL            string `json:"url"`
	Instructions   string `json:"instructions,omitempty"`
	Provider       string `json:"provider"`
	Status         Status `json:"status"`
	SessionID      string `json:"sessionId,omitempty"`
	ExecutionID    string `json:"executionId,omitempty"`
	LiveURL        string `json:"liveUrl,omitempty"`
	FilesGenerated int    `json:"filesGenerated"`
	ResultSummary  string `json:"resultSummary,omitempty"`
	StartedAt      int64  `json:"startedAt"`
	CompletedAt    *int64 `json:"completedAt,omitempty"`
}

// Outcome is the terminal patch written by Finish.
type Outcome struct {
	Status         Status
	FilesGenerated int
	ResultSummary  string
	SessionID      string
	ExecutionID    string
	CompletedAt    int64
}

// Store is the exploration database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

const columns = `id, domain, url, instructions, provider, status, COALESCE(session_id, ''),
	COALESCE(execution_id, ''), COALESCE(live_url, ''), files_generated, result_summary,
	started_at, completed_at`

func scan(sc interface{ Scan(...any) error }) (*Exploration, error) {
	e := &Exploration{}
	var completed sql.NullInt64
	if err := sc.Scan(&e.ID, &e.Domain, &e.URL, &e.Instructions, &e.Provider, &e.Status,
		&e.SessionID, &e.ExecutionID, &e.LiveURL, &e.FilesGenerated, &e.ResultSummary,
		&e.StartedAt, &completed); err != nil {
		return nil, err
	}
	if completed.Valid {
		e.CompletedAt = &completed.Int64
	}
	return e, nil
}

const insertSQL = `
	INSERT INTO explorations (id, domain, url, instructions, provider, status, started_at)
	VALUES (?, ?, ?, ?, ?, 'queued', ?)`

// Create inserts a queued exploration.
func (s *Store) Create(ctx context.Context, e *Exploration) error {
	e.Status = StatusQueued
	_, err := dbopen.Exec(ctx, s.DB, insertSQL, e.ID, e.Domain, e.URL, e.Instructions, e.Provider, e.StartedAt)
	if err != nil {
		return fmt.Errorf("store: create exploration: %w", err)
	}
	return nil
}

// CreateTx is Create inside tx.
func (s *Store) CreateTx(ctx context.Context, tx *sql.Tx, e *Exploration) error {
	e.Status = StatusQueued
	_, err := tx.ExecContext(ctx, insertSQL, e.ID, e.Domain, e.URL, e.Instructions, e.Provider, e.StartedAt)
	if err != nil {
		return fmt.Errorf("store: create exploration: %w", err)
	}
	return nil
}

// Get returns an exploration, or (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, id string) (*Exploration, error) {
	e, err := scan(s.DB.QueryRowContext(ctx, `SELECT `+columns+` FROM explorations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// List returns the most recently started explorations.
func (s *Store) List(ctx context.Context, limit int) ([]*Exploration, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM explorations ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListByStatus returns explorations in one status, newest first.
func (s *Store) ListByStatus(ctx context.Context, status Status, limit int) ([]*Exploration, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM explorations WHERE status = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*Exploration, error) {
	out := []*Exploration{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func applied(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkRunning moves a queued exploration to running. It reports false when
// the exploration was not queued.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	return applied(dbopen.Exec(ctx, s.DB,
		`UPDATE explorations SET status = 'running' WHERE id = ? AND status = 'queued'`, id))
}

// AttachSession adds session metadata to a live exploration. Empty values
// and fields already set are left alone. It reports false, writing
// nothing, once the exploration is terminal.
func (s *Store) AttachSession(ctx context.Context, id, sessionID, executionID, liveURL string) (bool, error) {
	return applied(dbopen.Exec(ctx, s.DB, `
		UPDATE explorations SET
			session_id   = COALESCE(session_id, NULLIF(?, '')),
			execution_id = COALESCE(execution_id, NULLIF(?, '')),
			live_url     = COALESCE(live_url, NULLIF(?, ''))
		WHERE id = ? AND status IN ('queued', 'running')`,
		sessionID, executionID, liveURL, id))
}

// Finish moves a running exploration to its terminal status. It reports
// false when the exploration was not running.
func (s *Store) Finish(ctx context.Context, id string, o *Outcome) (bool, error) {
	if !o.Status.Terminal() {
		return false, fmt.Errorf("store: finish with non-terminal status %q", o.Status)
	}
	return applied(dbopen.Exec(ctx, s.DB, `
		UPDATE explorations SET
			status          = ?,
			files_generated = ?,
			result_summary  = ?,
			session_id      = COALESCE(session_id, NULLIF(?, '')),
			execution_id    = COALESCE(execution_id, NULLIF(?, '')),
			completed_at    = ?
		WHERE id = ? AND status = 'running'`,
		o.Status, o.FilesGenerated, o.ResultSummary, o.SessionID, o.ExecutionID, o.CompletedAt, id))
}

// CountByStatus returns the number of explorations in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM explorations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Status]int{}
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}
