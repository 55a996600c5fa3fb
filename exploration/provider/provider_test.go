package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture()
	if res, err := f.Snapshot(); err != nil || res.Status != StatusRunning {
		t.Fatalf("snapshot before resolve = %+v, %v", res, err)
	}

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Resolve(&RunResult{Status: StatusCompleted, Output: strings.Repeat("x", i)}, nil)
		}()
	}
	wg.Wait()
	<-f.Done()

	first, _ := f.Result()
	f.Resolve(nil, errors.New("late"))
	again, err := f.Result()
	if err != nil || again != first {
		t.Fatalf("second resolve changed the outcome: %+v, %v", again, err)
	}
}

func TestHandleRelease(t *testing.T) {
	h := NewHandle("ext", "")
	calls := 0
	h.OnRelease(func() { calls++ })
	h.Release()
	h.Release()
	if calls != 1 {
		t.Errorf("release ran %d times", calls)
	}
	h.SetSessionID("s1")
	if h.SessionID() != "s1" {
		t.Errorf("session id = %q", h.SessionID())
	}
}

func TestStatusTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusQueued: false, StatusRunning: false,
		StatusCompleted: true, StatusFailed: true, StatusCancelled: true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v", s, !want)
		}
	}
}

type namedProvider struct{ name string }

func (p namedProvider) Name() string { return p.name }
func (namedProvider) Check() error   { return nil }
func (namedProvider) Launch(context.Context, *LaunchRequest) (*Handle, error) {
	return nil, nil
}
func (namedProvider) Poll(context.Context, *Handle) (*RunResult, error) { return nil, nil }
func (namedProvider) Session(context.Context, *Handle) (*Session, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(namedProvider{"b"}, namedProvider{"a"})
	if got := r.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("names = %v", got)
	}
	if !r.Has("a") || r.Has("zzz") {
		t.Error("Has mismatch")
	}
	_, err := r.Get("zzz")
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) || cerr.Provider != "zzz" {
		t.Errorf("Get unknown = %v", err)
	}
}

func TestTaskText(t *testing.T) {
	text := TaskText(&LaunchRequest{URL: "https://shop.example", Domain: "shop.example", Instructions: "focus on checkout"},
		"https://radar.example/api/submit-file")
	for _, want := range []string{
		"https://radar.example/api/submit-file",
		"focus on checkout",
		"EXPLORATION_COMPLETE: <number> files submitted for shop.example",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("task text lacks %q", want)
		}
	}
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("X-Key") != "k" || r.Header.Get("Content-Type") != "application/json" {
				http.Error(w, "bad headers", http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"id":"1"}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "nope", http.StatusTeapot)
		}
	}))
	defer srv.Close()
	ctx := context.Background()
	hdr := http.Header{"X-Key": {"k"}}

	var out struct{ ID string }
	if err := DoJSON(ctx, srv.Client(), http.MethodPost, srv.URL+"/ok", hdr, map[string]int{"a": 1}, &out); err != nil || out.ID != "1" {
		t.Fatalf("ok: %+v, %v", out, err)
	}
	if err := DoJSON(ctx, srv.Client(), http.MethodGet, srv.URL+"/empty", nil, nil, &out); err != nil {
		t.Fatalf("empty: %v", err)
	}
	err := DoJSON(ctx, srv.Client(), http.MethodGet, srv.URL+"/teapot", nil, nil, nil)
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Status != http.StatusTeapot || serr.Body != "nope" {
		t.Fatalf("teapot: %v", err)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	if !errors.Is(&LaunchError{Provider: "p", Err: cause}, cause) {
		t.Error("LaunchError does not unwrap")
	}
	if !errors.Is(&PollError{Provider: "p", Err: cause}, cause) {
		t.Error("PollError does not unwrap")
	}
	if got := (&ConfigurationError{Provider: "asteroid", Missing: "ASTEROID_API_KEY"}).Error(); got != "asteroid: missing ASTEROID_API_KEY" {
		t.Errorf("ConfigurationError = %q", got)
	}
}
