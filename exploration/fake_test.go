package exploration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/exploration/internal/queue"
	"github.com/hazyhaar/radar/exploration/internal/store"
	"github.com/hazyhaar/radar/exploration/provider"
)

// fakeProvider is a scripted provider that counts its calls.
type fakeProvider struct {
	name    string
	check   func() error
	launch  func(ctx context.Context, req *provider.LaunchRequest) (*provider.Handle, error)
	poll    func(ctx context.Context, h *provider.Handle) (*provider.RunResult, error)
	session func(ctx context.Context, h *provider.Handle) (*provider.Session, error)

	launches atomic.Int32
	polls    atomic.Int32
	sessions atomic.Int32
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeProvider) Check() error {
	if f.check != nil {
		return f.check()
	}
	return nil
}

func (f *fakeProvider) Launch(ctx context.Context, req *provider.LaunchRequest) (*provider.Handle, error) {
	f.launches.Add(1)
	if f.launch != nil {
		return f.launch(ctx, req)
	}
	return provider.NewHandle("ext-"+req.ExplorationID, ""), nil
}

func (f *fakeProvider) Poll(ctx context.Context, h *provider.Handle) (*provider.RunResult, error) {
	n := f.polls.Add(1)
	if f.poll != nil {
		return f.poll(ctx, h)
	}
	if n < 2 {
		return &provider.RunResult{Status: provider.StatusRunning}, nil
	}
	return &provider.RunResult{Status: provider.StatusCompleted}, nil
}

func (f *fakeProvider) Session(ctx context.Context, h *provider.Handle) (*provider.Session, error) {
	f.sessions.Add(1)
	if f.session != nil {
		return f.session(ctx, h)
	}
	return &provider.Session{}, nil
}

func testConfig() *Config {
	return &Config{
		DefaultProvider:    "fake",
		PollInterval:       5 * time.Millisecond,
		MaxDuration:        2 * time.Second,
		SideChannelTimeout: 300 * time.Millisecond,
		SessionIDTimeout:   100 * time.Millisecond,
		SidePollInterval:   5 * time.Millisecond,
		QueuePollInterval:  5 * time.Millisecond,
	}
}

func testOrchestrator(t *testing.T, cfg *Config, ps ...provider.Provider) *Orchestrator {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema), dbopen.WithSchema(queue.Schema))
	o := newOrchestrator(&store.Store{DB: db}, cfg, provider.NewRegistry(ps...), nil)
	// Registered after the database cleanup, so it runs first.
	t.Cleanup(o.sides.Wait)
	return o
}

// startAndDrive starts an exploration and drives it synchronously.
func startAndDrive(t *testing.T, o *Orchestrator, req *StartRequest) *Exploration {
	t.Helper()
	ctx := context.Background()
	e, err := o.Start(ctx, req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.drive(ctx, e); err != nil {
		t.Fatalf("drive: %v", err)
	}
	got, err := o.Get(ctx, e.ID)
	if err != nil || got == nil {
		t.Fatalf("Get(%s) = %v, %v", e.ID, got, err)
	}
	return got
}
