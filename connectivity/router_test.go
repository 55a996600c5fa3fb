package connectivity

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/idgen"
	"github.com/hazyhaar/radar/kit"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func fakeHTTP(calls *int32) TransportFactory {
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte("remote:" + endpoint), nil
		}, nil, nil
	}
}

func TestRegisterLocal_and_Call(t *testing.T) {
	r := New()
	r.RegisterLocal("radar_submit_file", func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})

	resp, err := r.Call(context.Background(), "radar_submit_file", []byte(`{"domain":"a.com"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != `{"domain":"a.com"}` {
		t.Fatalf("got %q", resp)
	}
}

func TestCall_ServiceNotFound(t *testing.T) {
	_, err := New().Call(context.Background(), "nonexistent", nil)
	var snf *ErrServiceNotFound
	if !errors.As(err, &snf) || snf.Service != "nonexistent" {
		t.Fatalf("expected ErrServiceNotFound(nonexistent), got %T: %v", err, err)
	}
}

func TestReload_Strategies(t *testing.T) {
	db := setupTestDB(t)
	r := New()
	r.RegisterTransport("http", fakeHTTP(nil))
	r.RegisterLocal("radar_search", func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte("local"), nil
	})
	r.RegisterLocal("radar_submit_file", func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte("local"), nil
	})
	r.RegisterLocal("radar_explore", func(ctx context.Context, payload []byte) ([]byte, error) {
		t.Error("local handler should not be called for noop")
		return nil, nil
	})

	ctx := context.Background()
	for _, rt := range []Route{
		{Service: "radar_search", Strategy: "local"},
		{Service: "radar_submit_file", Strategy: "http", Endpoint: "https://radar.example.org/api/submit-file"},
		{Service: "radar_explore", Strategy: "noop"},
	} {
		if err := SetRoute(ctx, db, rt); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		service string
		want    string
	}{
		{"radar_search", "local"},
		{"radar_submit_file", "remote:https://radar.example.org/api/submit-file"},
		{"radar_explore", ""},
	}
	for _, tt := range tests {
		resp, err := r.Call(ctx, tt.service, nil)
		if err != nil {
			t.Fatalf("%s: %v", tt.service, err)
		}
		if string(resp) != tt.want {
			t.Errorf("%s: got %q, want %q", tt.service, resp, tt.want)
		}
	}
}

func TestReload_RebuildsOnlyChangedRoutes(t *testing.T) {
	db := setupTestDB(t)
	r := New()

	var builds, closes int32
	r.RegisterTransport("http", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		atomic.AddInt32(&builds, 1)
		h := func(ctx context.Context, payload []byte) ([]byte, error) { return []byte(endpoint), nil }
		return h, func() { atomic.AddInt32(&closes, 1) }, nil
	})

	ctx := context.Background()
	SetRoute(ctx, db, Route{Service: "svc", Strategy: "http", Endpoint: "http://a"})
	r.Reload(ctx, db)
	r.Reload(ctx, db)
	if b := atomic.LoadInt32(&builds); b != 1 {
		t.Fatalf("unchanged reload rebuilt handler: %d builds", b)
	}

	SetRoute(ctx, db, Route{Service: "svc", Strategy: "http", Endpoint: "http://b"})
	r.Reload(ctx, db)
	if b, c := atomic.LoadInt32(&builds), atomic.LoadInt32(&closes); b != 2 || c != 1 {
		t.Fatalf("changed route: builds=%d closes=%d, want 2/1", b, c)
	}
	if resp, _ := r.Call(ctx, "svc", nil); string(resp) != "http://b" {
		t.Fatalf("got %q after endpoint change", resp)
	}

	db.Exec(`DELETE FROM routes`)
	r.Reload(ctx, db)
	if c := atomic.LoadInt32(&closes); c != 2 {
		t.Fatalf("removed route not closed: closes=%d", c)
	}
}

func TestWithMiddleware_AppliesToLocalCalls(t *testing.T) {
	r := New(WithMiddleware(Recovery(slog.Default())))
	r.RegisterLocal("boom", func(ctx context.Context, payload []byte) ([]byte, error) {
		panic("kaboom")
	})
	_, err := r.Call(context.Background(), "boom", nil)
	var pe *ErrPanic
	if !errors.As(err, &pe) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	attempts := 0
	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	}

	resp, err := WithRetry(3, time.Millisecond, nil)(base)(context.Background(), nil)
	if err != nil || string(resp) != "ok" {
		t.Fatalf("got %q, %v", resp, err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		attempts++
		return nil, &ErrRemoteStatus{Status: http.StatusBadRequest, Body: "summary is required"}
	}
	if _, err := WithRetry(5, time.Millisecond, nil)(base)(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		attempts++
		cancel()
		return nil, errors.New("fail")
	}
	if _, err := WithRetry(5, time.Millisecond, nil)(base)(ctx, nil); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt (context cancelled), got %d", attempts)
	}
}

func TestHTTPFactory_PostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) == `{"bad":true}` {
			http.Error(w, `{"error":"invalid"}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"fileId":"f1","version":1,"pointsAwarded":15}`))
	}))
	defer srv.Close()

	h, closeFn, err := HTTPFactory(AllowPrivateEndpoints())(srv.URL, json.RawMessage(`{"timeout_ms":2000}`))
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	resp, err := h(context.Background(), []byte(`{"domain":"a.com"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != `{"fileId":"f1","version":1,"pointsAwarded":15}` {
		t.Fatalf("got %s", resp)
	}

	_, err = h(context.Background(), []byte(`{"bad":true}`))
	var rs *ErrRemoteStatus
	if !errors.As(err, &rs) || rs.Status != http.StatusBadRequest {
		t.Fatalf("expected ErrRemoteStatus 400, got %v", err)
	}
}

func TestHTTPFactory_RejectsPrivateURL(t *testing.T) {
	f := HTTPFactory()
	for _, endpoint := range []string{"http://127.0.0.1:8080", "http://10.0.0.1:8080", "file:///etc/passwd"} {
		if _, _, err := f(endpoint, nil); err == nil {
			t.Errorf("expected error for %s", endpoint)
		}
	}
}

func TestWatch_DetectsChanges(t *testing.T) {
	// data_version only changes when a different connection writes.
	dbPath := t.TempDir() + "/routes.db"
	writerDB, err := dbopen.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { writerDB.Close() })
	if err := Init(writerDB); err != nil {
		t.Fatal(err)
	}
	readerDB, err := dbopen.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { readerDB.Close() })
	readerDB.SetMaxOpenConns(1)

	r := New()
	var builds int32
	r.RegisterTransport("http", fakeHTTP(&builds))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Watch(ctx, readerDB, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	if err := SetRoute(ctx, writerDB, Route{Service: "svc", Strategy: "http", Endpoint: "http://x"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&builds) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not rebuild route after insert")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCallInfoAndTracing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(WithMiddleware(Tracing(idgen.Sequence("trc")), Logging(logger)))

	var got CallInfo
	var trace string
	r.RegisterLocal("radar_submit_file", func(ctx context.Context, payload []byte) ([]byte, error) {
		got, _ = CallInfoFrom(ctx)
		trace = kit.GetTraceID(ctx)
		return []byte("ok"), nil
	})

	if _, err := r.Call(kit.WithTransport(context.Background(), "worker"), "radar_submit_file", nil); err != nil {
		t.Fatal(err)
	}
	if got.Service != "radar_submit_file" || got.Route != "local" {
		t.Errorf("call info = %+v", got)
	}
	if trace != "trc-1" {
		t.Errorf("trace id = %q, want generated trc-1", trace)
	}
	for _, want := range []string{`"service":"radar_submit_file"`, `"route":"local"`, `"transport":"worker"`, `"trace_id":"trc-1"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log lacks %s: %s", want, buf.String())
		}
	}

	// An incoming trace id is kept.
	r.Call(kit.WithTraceID(context.Background(), "req-42"), "radar_submit_file", nil)
	if trace != "req-42" {
		t.Errorf("trace id = %q, want req-42", trace)
	}
}

func TestTimeoutNamesService(t *testing.T) {
	r := New(WithMiddleware(Timeout(10 * time.Millisecond)))
	r.RegisterLocal("slow", func(ctx context.Context, payload []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := r.Call(context.Background(), "slow", nil)
	var te *ErrTimeout
	if !errors.As(err, &te) || te.Service != "slow" || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrTimeout for slow", err)
	}

	// The caller's own cancellation is not reported as a timeout.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Call(ctx, "slow", nil); errors.As(err, &te) {
		t.Fatalf("cancelled call reported as timeout: %v", err)
	}
}

func TestHTTPFactory_ForwardsTraceID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Trace-ID")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	h, closeFn, err := HTTPFactory(AllowPrivateEndpoints())(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, err := h(kit.WithTraceID(context.Background(), "trc-7"), []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if seen != "trc-7" {
		t.Fatalf("X-Trace-ID = %q", seen)
	}
}
