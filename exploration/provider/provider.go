// Package provider defines the browser-automation backends an exploration
// runs on.
//
// Two shapes exist. Poll-style providers (asteroid) report status only when
// asked, so the orchestrator calls Poll on a fixed interval. Future-style
// providers (browseruse, local) run the whole exploration behind a Future
// that resolves exactly once; the orchestrator waits on Future.Done instead
// of polling. Both are selected by the provider tag stored on the
// exploration.
package provider

import (
	"context"
	"sync"
	"time"
)

// Status is a provider-side run status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s ends the run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// LaunchRequest is what a provider needs to start a run.
type LaunchRequest struct {
	ExplorationID string
	URL           string
	Domain        string
	Instructions  string
}

// RunResult is a status report. Output is the agent's free-text final
// answer; ResultText is an error or explanation when the run failed.
type RunResult struct {
	Status     Status `json:"status"`
	Output     string `json:"output,omitempty"`
	ResultText string `json:"resultText,omitempty"`
}

// Session describes the provider session backing a run. Every field is
// optional; fields appear progressively while the run is alive.
type Session struct {
	SessionID    string     `json:"sessionId,omitempty"`
	LiveURL      string     `json:"liveUrl,omitempty"`
	Cost         *float64   `json:"cost,omitempty"`
	InputTokens  *int       `json:"inputTokens,omitempty"`
	OutputTokens *int       `json:"outputTokens,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Provider is one automation backend.
type Provider interface {
	// Name is the tag stored on explorations.
	Name() string
	// Check verifies the provider is configured. It returns a
	// *ConfigurationError and never performs I/O.
	Check() error
	// Launch starts a run. Failures are *LaunchError.
	Launch(ctx context.Context, req *LaunchRequest) (*Handle, error)
	// Poll reports the run status. Failures are *PollError and transient.
	Poll(ctx context.Context, h *Handle) (*RunResult, error)
	// Session fetches session metadata, best effort.
	Session(ctx context.Context, h *Handle) (*Session, error)
}

// Handle identifies a launched run.
type Handle struct {
	ExternalID string

	// Future is set by future-style providers.
	Future *Future

	mu        sync.Mutex
	sessionID string
	stop      func()
}

// NewHandle returns a handle for a run. sessionID may be empty and filled
// in later with SetSessionID.
func NewHandle(externalID, sessionID string) *Handle {
	return &Handle{ExternalID: externalID, sessionID: sessionID}
}

// SessionID returns the session id, or "" while unknown.
func (h *Handle) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

// SetSessionID records a session id discovered after launch.
func (h *Handle) SetSessionID(id string) {
	h.mu.Lock()
	h.sessionID = id
	h.mu.Unlock()
}

// OnRelease registers fn to run when the orchestrator is done with the run.
func (h *Handle) OnRelease(fn func()) {
	h.mu.Lock()
	h.stop = fn
	h.mu.Unlock()
}

// Release stops any background work attached to the run. Safe to call more
// than once.
func (h *Handle) Release() {
	h.mu.Lock()
	fn := h.stop
	h.stop = nil
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Future is a run result that resolves once.
type Future struct {
	once sync.Once
	done chan struct{}
	res  *RunResult
	err  error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve sets the outcome. Only the first call has an effect.
func (f *Future) Resolve(res *RunResult, err error) {
	f.once.Do(func() {
		f.res, f.err = res, err
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future) Result() (*RunResult, error) {
	<-f.done
	return f.res, f.err
}

// Snapshot returns the result if resolved, or a running status.
func (f *Future) Snapshot() (*RunResult, error) {
	select {
	case <-f.done:
		return f.res, f.err
	default:
		return &RunResult{Status: StatusRunning}, nil
	}
}
