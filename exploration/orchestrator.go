// Package exploration runs automated browser agents against websites and
// tracks each run as a state machine:
//
//	queued -> running -> completed
//	                  -> failed
//
// Start records a queued exploration and publishes it on a SQLite
// visibility-timeout queue. Run consumes the queue with a bounded worker
// pool; each job drives one exploration to a terminal state on the
// provider named by its tag. A job redelivered after a crash finds its
// exploration still running and fails it as interrupted.
//
// Usage:
//
//	reg := provider.NewRegistry(asteroid.New(acfg, nil), local.New(lcfg, router, logger))
//	orch, err := exploration.New(&exploration.Config{DBPath: "radar.db"}, reg, logger)
//	defer orch.Close()
//	go orch.Run(ctx)
//	e, err := orch.Start(ctx, &exploration.StartRequest{URL: "example.com"})
package exploration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/radar/audit"
	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/exploration/internal/queue"
	"github.com/hazyhaar/radar/exploration/internal/store"
	"github.com/hazyhaar/radar/exploration/provider"
	"github.com/hazyhaar/radar/horosafe"
	"github.com/hazyhaar/radar/idgen"
	"github.com/hazyhaar/radar/kit"
)

// Exploration is one automated browser run against a URL.
type Exploration = store.Exploration

// Status of an exploration.
type Status = store.Status

const (
	StatusQueued    = store.StatusQueued
	StatusRunning   = store.StatusRunning
	StatusCompleted = store.StatusCompleted
	StatusFailed    = store.StatusFailed
)

// Orchestrator starts explorations and drives them to completion.
type Orchestrator struct {
	store     *store.Store
	queue     *queue.Q
	providers *provider.Registry
	logger    *slog.Logger
	config    *Config
	newID     idgen.Generator
	now       func() time.Time
	audit     audit.Logger

	sides sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAudit records starts and terminal outcomes in a.
func WithAudit(a audit.Logger) Option {
	return func(o *Orchestrator) { o.audit = a }
}

// New opens the exploration database and returns the orchestrator.
func New(cfg *Config, providers *provider.Registry, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	cfg.defaults()
	s, err := store.Open(cfg.DBPath, dbopen.WithSchema(queue.Schema))
	if err != nil {
		return nil, err
	}
	o := newOrchestrator(s, cfg, providers, logger)
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func newOrchestrator(s *store.Store, cfg *Config, providers *provider.Registry, logger *slog.Logger) *Orchestrator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:     s,
		providers: providers,
		logger:    logger,
		config:    cfg,
		newID:     idgen.Default,
		now:       time.Now,
	}
	o.queue = queue.New(s.DB, queue.Options{
		Visibility:   cfg.MaxDuration + cfg.LaunchTimeout + time.Minute,
		PollInterval: cfg.QueuePollInterval,
		OnDiscard:    o.giveUp,
		Logger:       logger,
	})
	return o
}

// Close waits for pending session lookups and closes the database.
func (o *Orchestrator) Close() error {
	o.sides.Wait()
	return o.store.Close()
}

// StartRequest asks for a new exploration.
type StartRequest struct {
	URL          string `json:"url"`
	Instructions string `json:"instructions,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

// Start records a queued exploration and schedules it. It returns as soon
// as the exploration is queued; the outcome is read back with Get.
// Repeated starts for the same domain create independent explorations.
func (o *Orchestrator) Start(ctx context.Context, req *StartRequest) (*Exploration, error) {
	target, domain, err := normalizeURL(req.URL)
	if err != nil {
		return nil, err
	}
	tag := strings.TrimSpace(req.Provider)
	if tag == "" {
		tag = o.config.DefaultProvider
	}
	if !o.providers.Has(tag) {
		return nil, &ValidationError{Field: "provider", Reason: "unknown provider " + tag + " (have " + strings.Join(o.providers.Names(), ", ") + ")"}
	}

	e := &Exploration{
		ID:           o.newID(),
		Domain:       domain,
		URL:          target,
		Instructions: strings.TrimSpace(req.Instructions),
		Provider:     tag,
		StartedAt:    o.now().UnixMilli(),
	}
	err = dbopen.RunTx(ctx, o.store.DB, func(tx *sql.Tx) error {
		if err := o.store.CreateTx(ctx, tx, e); err != nil {
			return err
		}
		if err := o.queue.PublishTx(ctx, tx, e.ID, []byte(e.ID)); err != nil {
			return fmt.Errorf("publish exploration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("exploration: queued", "exploration_id", e.ID, "domain", domain, "provider", tag)
	if o.audit != nil {
		o.audit.LogAsync(audit.NewEntry(ctx, "exploration_start", domain, map[string]string{
			"explorationId": e.ID, "url": target, "provider": tag,
		}, nil, 0))
	}
	return e, nil
}

// auditFinish records a terminal outcome written by this process.
func (o *Orchestrator) auditFinish(e *Exploration, out *store.Outcome) {
	if o.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:     "exploration_finish",
		Actor:      e.Domain,
		Transport:  "worker",
		DurationMs: out.CompletedAt - e.StartedAt,
		Parameters: fmt.Sprintf(`{"explorationId":%q,"provider":%q,"status":%q,"filesGenerated":%d}`,
			e.ID, e.Provider, out.Status, out.FilesGenerated),
	}
	if out.Status == StatusFailed {
		entry.Status = "error"
		entry.Error = out.ResultSummary
	}
	o.audit.LogAsync(entry)
}

// normalizeURL adds a missing https:// scheme and returns the URL and its
// domain without "www.".
func normalizeURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", &ValidationError{Field: "url", Reason: "is required"}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := horosafe.CheckScheme(raw)
	if err != nil {
		return "", "", &ValidationError{Field: "url", Reason: err.Error()}
	}
	host := strings.ToLower(u.Hostname())
	return u.String(), strings.TrimPrefix(host, "www."), nil
}

// Get returns an exploration, or (nil, nil) if absent. The id may be given
// in any UUID spelling.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Exploration, error) {
	canon, err := idgen.Parse(id)
	if err != nil {
		return nil, nil
	}
	return o.store.Get(ctx, canon)
}

// List returns the most recently started explorations.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]*Exploration, error) {
	return o.store.List(ctx, limit)
}

// ListByStatus returns explorations in one status, newest first.
func (o *Orchestrator) ListByStatus(ctx context.Context, status Status, limit int) ([]*Exploration, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}
	return o.store.ListByStatus(ctx, status, limit)
}

// Counts returns the number of explorations in each status.
func (o *Orchestrator) Counts(ctx context.Context) (map[Status]int, error) {
	return o.store.CountByStatus(ctx)
}

// Run consumes queued explorations until ctx is cancelled, driving at most
// Config.Workers at a time.
func (o *Orchestrator) Run(ctx context.Context) {
	o.queue.Run(kit.WithTransport(ctx, "worker"), o.config.Workers, o.handleJob)
}

func (o *Orchestrator) handleJob(ctx context.Context, job *queue.Job) error {
	id := string(job.Payload)
	e, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		o.logger.Warn("exploration: job for unknown exploration", "exploration_id", id)
		return nil
	}

	switch {
	case e.Status.Terminal():
		return nil
	case e.Status == StatusRunning:
		// A previous drive died with the process.
		o.logger.Warn("exploration: interrupted run found", "exploration_id", id, "attempts", job.Attempts)
		out := &store.Outcome{
			Status:        StatusFailed,
			ResultSummary: "interrupted",
			CompletedAt:   o.now().UnixMilli(),
		}
		applied, err := o.store.Finish(ctx, id, out)
		if applied {
			o.auditFinish(e, out)
		}
		return err
	default:
		return o.drive(ctx, e)
	}
}

// giveUp fails the exploration of a job the queue stopped redelivering, so
// it does not stay queued or running forever.
func (o *Orchestrator) giveUp(ctx context.Context, job *queue.Job) {
	id := string(job.Payload)
	log := o.logger.With("exploration_id", id, "attempts", job.Attempts)
	e, err := o.store.Get(ctx, id)
	if err != nil {
		log.Error("exploration: give up", "error", err)
		return
	}
	if e == nil || e.Status.Terminal() {
		return
	}
	if e.Status == StatusQueued {
		if _, err := o.store.MarkRunning(ctx, id); err != nil {
			log.Error("exploration: give up", "error", err)
			return
		}
	}
	now := o.now()
	out := &store.Outcome{
		Status:        StatusFailed,
		ResultSummary: failedSummary(now.Sub(time.UnixMilli(e.StartedAt)), fmt.Sprintf("abandoned after %d attempts", job.Attempts-1)),
		CompletedAt:   now.UnixMilli(),
	}
	applied, err := o.store.Finish(ctx, id, out)
	if err != nil {
		log.Error("exploration: give up", "error", err)
		return
	}
	if applied {
		log.Warn("exploration: abandoned")
		o.auditFinish(e, out)
	}
}
