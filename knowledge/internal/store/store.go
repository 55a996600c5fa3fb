// Package store is the SQLite persistence layer for the knowledge base:
// sites, files, the contribution ledger and the contributor scoreboard.
//
// Reads go through Store. Writes of a submission go through Tx, obtained
// from Store.InTx, so that the four entity writes commit together.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/hazyhaar/radar/dbopen"
)

// ErrConflict reports that a concurrent writer changed a row between the
// read and the write of a submission (version CAS lost, or a site/file
// inserted under our feet). The whole transaction must be retried.
var ErrConflict = errors.New("store: concurrent modification")

// ErrNotFound is returned by lookups that require the row to exist.
var ErrNotFound = errors.New("store: not found")

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the knowledge database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the knowledge database at path and applies the
// schema.
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

// Tx is a submission transaction.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn in one transaction. It is rerun from scratch when it fails
// with SQLITE_BUSY or with an error wrapping dbopen.ErrRetry.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// ftsQuery turns free text into an FTS5 query matching every term, so
// punctuation in user input never reaches the FTS5 parser.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unmarshalInto(s string, v any) {
	if s == "" {
		return
	}
	json.Unmarshal([]byte(s), v)
}
