// Package audit records radar's data-modifying operations (submissions,
// exploration starts and their terminal outcomes) in an SQLite audit trail.
//
// Entries are buffered and written in batches by a background goroutine;
// Close drains the buffer. Services take an optional Logger and stay silent
// when none is configured.
//
// Usage:
//
//	a := audit.NewSQLiteLogger(db)
//	if err := a.Init(); err != nil { ... }
//	defer a.Close()
//	svc, err := knowledge.New(cfg, logger, knowledge.WithAudit(a))
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/idgen"
	"github.com/hazyhaar/radar/kit"
)

// Schema is the audit_log DDL, applied by Init or through dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id      TEXT PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    action        TEXT NOT NULL,
    actor         TEXT NOT NULL DEFAULT '',
    transport     TEXT NOT NULL DEFAULT '',
    trace_id      TEXT NOT NULL DEFAULT '',
    remote_addr   TEXT NOT NULL DEFAULT '',
    parameters    TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action, timestamp DESC);
`

const (
	batchSize     = 32
	flushInterval = 2 * time.Second
)

// Entry is one audited operation. Timestamp is in Unix milliseconds.
type Entry struct {
	EntryID    string `json:"entryId"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Actor      string `json:"actor,omitempty"`
	Transport  string `json:"transport,omitempty"`
	TraceID    string `json:"traceId,omitempty"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// Logger is what services depend on.
type Logger interface {
	Log(ctx context.Context, e *Entry) error
	LogAsync(e *Entry)
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Action string
	Actor  string
	Status string
	Since  time.Time
	Limit  int // default 100
}

// SQLiteLogger persists entries in the audit_log table.
type SQLiteLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Entry
	stop   chan struct{}
	done   chan struct{}
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator overrides the entry ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithLogger sets the slog logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.logger = logger }
}

// WithBufferSize sets the async buffer capacity. Default: 1000.
func WithBufferSize(n int) Option {
	return func(l *SQLiteLogger) { l.ch = make(chan *Entry, n) }
}

// NewSQLiteLogger starts the flush goroutine. Call Init (or open db with
// Schema) before logging.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:     db,
		newID:  idgen.Prefixed("aud_", idgen.Default),
		logger: slog.Default(),
		ch:     make(chan *Entry, 1000),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Init creates the audit_log table.
func (l *SQLiteLogger) Init() error {
	if _, err := l.db.Exec(Schema); err != nil {
		return fmt.Errorf("audit: init schema: %w", err)
	}
	return nil
}

// Log inserts an entry synchronously. Request-scoped values (transport,
// trace id, remote address) are taken from ctx when the entry lacks them.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	fromContext(ctx, e)
	l.fillDefaults(e)
	return l.insert(ctx, e)
}

// LogAsync queues an entry. It falls back to a synchronous insert when the
// buffer is full.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: buffer full, writing synchronously", "action", e.Action)
		if err := l.insert(context.Background(), e); err != nil {
			l.logger.Error("audit: sync fallback failed", "action", e.Action, "error", err)
		}
	}
}

// Query returns entries newest first.
func (l *SQLiteLogger) Query(ctx context.Context, f *Filter) ([]*Entry, error) {
	q := `SELECT entry_id, timestamp, action, actor, transport, trace_id, remote_addr,
		parameters, status, error_message, duration_ms
		FROM audit_log WHERE 1=1`
	var args []any
	if f.Action != "" {
		q += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		q += " AND actor = ?"
		args = append(args, f.Actor)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Actor, &e.Transport,
			&e.TraceID, &e.RemoteAddr, &e.Parameters, &e.Status, &e.Error, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than retention and returns how many went.
func (l *SQLiteLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := dbopen.Exec(ctx, l.db, `DELETE FROM audit_log WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine. It does not close
// the database.
func (l *SQLiteLogger) Close() error {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	<-l.done
	return nil
}

// NewEntry builds an entry for action with params marshalled to JSON and
// the status derived from err.
func NewEntry(ctx context.Context, action, actor string, params any, err error, d time.Duration) *Entry {
	e := &Entry{
		Action:     action,
		Actor:      actor,
		DurationMs: d.Milliseconds(),
	}
	if params != nil {
		if b, merr := json.Marshal(params); merr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.Error = err.Error()
	}
	fromContext(ctx, e)
	return e
}

func fromContext(ctx context.Context, e *Entry) {
	if e.Transport == "" {
		e.Transport = kit.GetTransport(ctx)
	}
	if e.TraceID == "" {
		e.TraceID = kit.GetTraceID(ctx)
	}
	if e.RemoteAddr == "" {
		e.RemoteAddr = kit.GetRemoteAddr(ctx)
	}
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

const insertSQL = `INSERT INTO audit_log
	(entry_id, timestamp, action, actor, transport, trace_id, remote_addr,
	 parameters, status, error_message, duration_ms)
	VALUES (?,?,?,?,?,?,?,?,?,?,?)`

func (l *SQLiteLogger) insert(ctx context.Context, e *Entry) error {
	_, err := dbopen.Exec(ctx, l.db, insertSQL, e.args()...)
	return err
}

func (e *Entry) args() []any {
	return []any{e.EntryID, e.Timestamp, e.Action, e.Actor, e.Transport, e.TraceID,
		e.RemoteAddr, e.Parameters, e.Status, e.Error, e.DurationMs}
}

func (l *SQLiteLogger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]*Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, insertSQL)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, e := range batch {
				if _, err := stmt.ExecContext(ctx, e.args()...); err != nil {
					return fmt.Errorf("insert %s: %w", e.EntryID, err)
				}
			}
			return nil
		})
		if err != nil {
			l.logger.Error("audit: flush failed", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
