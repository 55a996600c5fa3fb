package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/radar/dbopen"
)

func TestOpenMemoryPragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatal(err)
	}
	if busyTimeout != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", busyTimeout)
	}
}

func TestOpenFileAppliesPragmasToEveryConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "radar.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithBusyTimeout(4321))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	// Pin two distinct connections.
	ctx := context.Background()
	c1, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	for i, c := range []*sql.Conn{c1, c2} {
		var bt int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&bt); err != nil {
			t.Fatal(err)
		}
		if bt != 4321 {
			t.Errorf("conn %d busy_timeout = %d, want 4321", i, bt)
		}
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestWithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE t (id TEXT PRIMARY KEY, name TEXT)`))
	if _, err := db.Exec(`INSERT INTO t (id, name) VALUES ('1', 'hello')`); err != nil {
		t.Fatalf("insert into schema-created table: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("some other error"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked"), true},
		{errors.New("prefix: SQLITE_BUSY (5)"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE u (name TEXT NOT NULL UNIQUE)`))
	if _, err := db.Exec(`INSERT INTO u (name) VALUES ('a')`); err != nil {
		t.Fatal(err)
	}
	_, err := db.Exec(`INSERT INTO u (name) VALUES ('a')`)
	if !dbopen.IsUniqueViolation(err) {
		t.Fatalf("IsUniqueViolation(%v) = false, want true", err)
	}
	if dbopen.IsUniqueViolation(errors.New("no such table")) {
		t.Fatal("unrelated error reported as unique violation")
	}
}

func TestRunTxRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE rb (id TEXT PRIMARY KEY)`))
	sentinel := errors.New("rollback me")

	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO rb (id) VALUES ('1')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTx error = %v, want sentinel", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM rb`).Scan(&count)
	if count != 0 {
		t.Fatalf("count = %d, want 0 after rollback", count)
	}
}

func TestRunTxRetriesOnErrRetry(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE rt (id INTEGER PRIMARY KEY)`))

	attempts := 0
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		attempts++
		if _, err := tx.Exec(`INSERT INTO rt (id) VALUES (?)`, attempts); err != nil {
			return err
		}
		if attempts < 3 {
			return fmt.Errorf("lost cas: %w", dbopen.ErrRetry)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}

	// Only the last attempt committed.
	var ids []int
	rows, _ := db.Query(`SELECT id FROM rt`)
	for rows.Next() {
		var id int
		rows.Scan(&id)
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("committed ids = %v, want [3]", ids)
	}
}

func TestRunTxGivesUpAfterMaxRetries(t *testing.T) {
	db := dbopen.OpenMemory(t)
	attempts := 0
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		attempts++
		return dbopen.ErrRetry
	})
	if !errors.Is(err, dbopen.ErrRetry) {
		t.Fatalf("err = %v, want ErrRetry", err)
	}
	if attempts != 5 {
		t.Fatalf("attempts = %d, want 5", attempts)
	}
}

func TestRunTxContextCancelled(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error { return nil }); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestRunTxImmediateSerialisesCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.db")
	db, err := dbopen.Open(path, dbopen.WithSchema(`
		CREATE TABLE IF NOT EXISTS counter (id INTEGER PRIMARY KEY, n INTEGER NOT NULL);
		INSERT OR IGNORE INTO counter (id, n) VALUES (1, 0);`))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(8)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
				var n int
				if err := tx.QueryRow(`SELECT n FROM counter WHERE id = 1`).Scan(&n); err != nil {
					return err
				}
				_, err := tx.Exec(`UPDATE counter SET n = ? WHERE id = 1`, n+1)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RunTx: %v", err)
		}
	}

	var n int
	db.QueryRow(`SELECT n FROM counter WHERE id = 1`).Scan(&n)
	if n != workers {
		t.Fatalf("counter = %d, want %d (lost update)", n, workers)
	}
}
