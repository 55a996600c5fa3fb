package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/idgen"
	"github.com/hazyhaar/radar/kit"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t)
}

func TestSQLiteLogger_Init(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db)
	defer logger.Close()

	if err := logger.Init(); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := logger.Init(); err != nil {
		t.Fatal(err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='audit_log'").Scan(&count)
	if count != 1 {
		t.Fatal("audit_log table not created")
	}
}

func TestSQLiteLogger_Log_Sync(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db)
	defer logger.Close()
	logger.Init()

	ctx := kit.WithTraceID(context.Background(), "tr_1")
	ctx = kit.WithRemoteAddr(ctx, "10.0.0.7")
	entry := &Entry{
		Action:     "submit_file",
		Actor:      "alice",
		Parameters: `{"domain":"example.com"}`,
	}
	if err := logger.Log(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if entry.EntryID == "" {
		t.Fatal("entry_id not generated")
	}
	if entry.Timestamp == 0 {
		t.Fatal("timestamp not set")
	}
	if entry.Status != "success" {
		t.Fatalf("status: got %q, want 'success'", entry.Status)
	}
	if entry.Transport != "http" {
		t.Fatalf("transport: got %q, want 'http'", entry.Transport)
	}

	var action, actor, traceID, remote string
	db.QueryRow("SELECT action, actor, trace_id, remote_addr FROM audit_log WHERE entry_id = ?", entry.EntryID).
		Scan(&action, &actor, &traceID, &remote)
	if action != "submit_file" || actor != "alice" {
		t.Fatalf("DB row: action=%q actor=%q", action, actor)
	}
	if traceID != "tr_1" || remote != "10.0.0.7" {
		t.Fatalf("DB row: trace_id=%q remote_addr=%q", traceID, remote)
	}
}

func TestSQLiteLogger_LogAsync(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db)
	logger.Init()

	logger.LogAsync(&Entry{Action: "async_test"})

	// Close flushes the buffer.
	logger.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action='async_test'").Scan(&count)
	if count != 1 {
		t.Fatalf("async entry count: got %d", count)
	}
}

func TestSQLiteLogger_FillDefaults_Error(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db)
	defer logger.Close()
	logger.Init()

	entry := &Entry{
		Action: "failing_op",
		Error:  "something broke",
	}
	logger.Log(context.Background(), entry)

	if entry.Status != "error" {
		t.Fatalf("status for error entry: got %q", entry.Status)
	}
}

func TestSQLiteLogger_WithIDGenerator(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db, WithIDGenerator(idgen.Sequence("custom")))
	defer logger.Close()
	logger.Init()

	entry := &Entry{Action: "custom_gen"}
	logger.Log(context.Background(), entry)

	if entry.EntryID != "custom-1" {
		t.Fatalf("custom ID: got %q", entry.EntryID)
	}
}

func TestSQLiteLogger_BatchFlush(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db)
	logger.Init()

	for range 50 {
		logger.LogAsync(&Entry{Action: "batch_test"})
	}

	// Batch threshold is 32, so at least one flush happens before Close.
	time.Sleep(100 * time.Millisecond)
	logger.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action='batch_test'").Scan(&count)
	if count != 50 {
		t.Fatalf("batch count: got %d, want 50", count)
	}
}

func TestSQLiteLogger_BufferFullFallsBackToSync(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db, WithBufferSize(0))
	logger.Init()

	for range 5 {
		logger.LogAsync(&Entry{Action: "unbuffered"})
	}
	logger.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action='unbuffered'").Scan(&count)
	if count != 5 {
		t.Fatalf("count: got %d, want 5", count)
	}
}

func TestSQLiteLogger_Query(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db)
	defer logger.Close()
	logger.Init()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UnixMilli()
	for i, e := range []*Entry{
		{Action: "submit_file", Actor: "alice"},
		{Action: "submit_file", Actor: "bob", Error: "invalid path"},
		{Action: "exploration_start", Actor: "example.com"},
		{Action: "submit_file", Actor: "alice"},
	} {
		e.Timestamp = base + int64(i)
		if err := logger.Log(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by action", Filter{Action: "submit_file"}, 3},
		{"by actor", Filter{Actor: "alice"}, 2},
		{"errors", Filter{Status: "error"}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"since", Filter{Since: time.UnixMilli(base + 2)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logger.Query(ctx, &tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}

	all, _ := logger.Query(ctx, &Filter{})
	if all[0].Timestamp != base+3 {
		t.Fatalf("first entry timestamp = %d, want newest %d", all[0].Timestamp, base+3)
	}
}

func TestSQLiteLogger_Cleanup(t *testing.T) {
	db := setupTestDB(t)
	logger := NewSQLiteLogger(db)
	defer logger.Close()
	logger.Init()
	ctx := context.Background()

	logger.Log(ctx, &Entry{Action: "old", Timestamp: time.Now().Add(-48 * time.Hour).UnixMilli()})
	logger.Log(ctx, &Entry{Action: "fresh"})

	n, err := logger.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}
	left, _ := logger.Query(ctx, &Filter{})
	if len(left) != 1 || left[0].Action != "fresh" {
		t.Fatalf("remaining = %+v", left)
	}
}

func TestNewEntry(t *testing.T) {
	ctx := kit.WithTransport(context.Background(), "mcp")
	e := NewEntry(ctx, "exploration_start", "example.com",
		map[string]string{"url": "https://example.com"}, errors.New("boom"), 1500*time.Millisecond)

	if e.Parameters != `{"url":"https://example.com"}` {
		t.Fatalf("parameters = %q", e.Parameters)
	}
	if e.Error != "boom" || e.DurationMs != 1500 || e.Transport != "mcp" {
		t.Fatalf("entry = %+v", e)
	}
}
