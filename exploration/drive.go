package exploration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/radar/exploration/internal/store"
	"github.com/hazyhaar/radar/exploration/provider"
)

// drive takes a queued exploration through running to a terminal state.
// Every path that claimed the exploration writes a terminal outcome, even
// when ctx is cancelled mid-run. The returned error only reports store
// failures; the job is then redelivered.
func (o *Orchestrator) drive(ctx context.Context, e *Exploration) error {
	log := o.logger.With("exploration_id", e.ID, "provider", e.Provider, "domain", e.Domain)
	started := o.now()

	ok, err := o.store.MarkRunning(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if !ok {
		log.Debug("exploration: not queued anymore, skipping")
		return nil
	}
	log.Info("exploration: running")

	out := o.run(ctx, e, started, log)
	out.CompletedAt = o.now().UnixMilli()

	applied, err := o.store.Finish(context.WithoutCancel(ctx), e.ID, out)
	if err != nil {
		log.Error("exploration: finish failed", "error", err)
		return fmt.Errorf("finish: %w", err)
	}
	if !applied {
		log.Warn("exploration: finish not applied, exploration left running state elsewhere")
		return nil
	}
	log.Info("exploration: finished", "status", out.Status, "files", out.FilesGenerated, "summary", out.ResultSummary)
	o.auditFinish(e, out)
	return nil
}

// run performs the provider work and returns the terminal outcome. It never
// panics.
func (o *Orchestrator) run(ctx context.Context, e *Exploration, started time.Time, log *slog.Logger) (out *store.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("exploration: drive panicked", "panic", r)
			out = &store.Outcome{
				Status:        StatusFailed,
				ResultSummary: failedSummary(o.now().Sub(started), fmt.Sprintf("internal error: %v", r)),
			}
		}
	}()

	p, err := o.providers.Get(e.Provider)
	if err == nil {
		err = p.Check()
	}
	if err != nil {
		log.Warn("exploration: provider not configured", "error", err)
		return &store.Outcome{Status: StatusFailed, ResultSummary: configSummary(err)}
	}

	launchCtx, cancel := context.WithTimeout(ctx, o.config.LaunchTimeout)
	h, err := p.Launch(launchCtx, &provider.LaunchRequest{
		ExplorationID: e.ID,
		URL:           e.URL,
		Domain:        e.Domain,
		Instructions:  e.Instructions,
	})
	cancel()
	if err != nil {
		log.Warn("exploration: launch failed", "error", err)
		return &store.Outcome{Status: StatusFailed, ResultSummary: launchSummary(err)}
	}
	defer h.Release()
	log.Info("exploration: launched", "external_id", h.ExternalID, "session_id", h.SessionID())

	if _, err := o.store.AttachSession(ctx, e.ID, h.SessionID(), h.ExternalID, ""); err != nil {
		log.Warn("exploration: record handle", "error", err)
	}

	o.sides.Add(1)
	go func() {
		defer o.sides.Done()
		o.watchSession(context.WithoutCancel(ctx), e.ID, p, h)
	}()

	res, err := o.await(ctx, p, h, log)
	elapsed := o.now().Sub(started)
	switch {
	case errors.Is(err, ErrTimedOut):
		log.Warn("exploration: timed out", "elapsed", elapsed)
		return &store.Outcome{
			Status:        StatusFailed,
			ResultSummary: timeoutSummary(elapsed, o.config.MaxDuration),
			SessionID:     h.SessionID(),
		}
	case err != nil:
		return &store.Outcome{
			Status:        StatusFailed,
			ResultSummary: failedSummary(elapsed, "interrupted: "+err.Error()),
			SessionID:     h.SessionID(),
		}
	}
	return o.outcome(e, h, res, elapsed)
}

// await blocks until the provider reports a terminal result, the run
// exceeds Config.MaxDuration, or ctx is cancelled.
func (o *Orchestrator) await(ctx context.Context, p provider.Provider, h *provider.Handle, log *slog.Logger) (*provider.RunResult, error) {
	deadline := time.NewTimer(o.config.MaxDuration)
	defer deadline.Stop()

	var done <-chan struct{}
	var tick <-chan time.Time
	if h.Future != nil {
		done = h.Future.Done()
	} else {
		t := time.NewTicker(o.config.PollInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrTimedOut
		case <-done:
			res, err := h.Future.Result()
			if err != nil {
				return &provider.RunResult{Status: provider.StatusFailed, ResultText: err.Error()}, nil
			}
			if res == nil || !res.Status.Terminal() {
				return &provider.RunResult{Status: provider.StatusFailed, ResultText: "run ended without a result"}, nil
			}
			return res, nil
		case <-tick:
			res, err := p.Poll(ctx, h)
			if err != nil {
				log.Warn("exploration: poll failed, retrying", "error", err)
				continue
			}
			if res.Status.Terminal() {
				return res, nil
			}
			log.Debug("exploration: poll", "status", res.Status)
		}
	}
}

// outcome maps a terminal provider result to completed or failed. Any
// non-success terminal status, cancelled included, is a failure.
func (o *Orchestrator) outcome(e *Exploration, h *provider.Handle, res *provider.RunResult, elapsed time.Duration) *store.Outcome {
	out := &store.Outcome{
		FilesGenerated: ParseFilesGenerated(res.Output),
		SessionID:      h.SessionID(),
	}
	if res.Status == provider.StatusCompleted {
		out.Status = StatusCompleted
		out.ResultSummary = completedSummary(e.Domain, elapsed, out.FilesGenerated)
		return out
	}
	msg := res.ResultText
	if msg == "" {
		msg = "provider reported " + string(res.Status)
	}
	out.Status = StatusFailed
	out.ResultSummary = failedSummary(elapsed, msg)
	return out
}

// watchSession records the session id and live URL of a run as they
// become known. It is bounded by Config.SideChannelTimeout, only adds
// fields, and stops at the first write refused because the exploration is
// already terminal. Its failures are logged and dropped, panics included.
func (o *Orchestrator) watchSession(ctx context.Context, id string, p provider.Provider, h *provider.Handle) {
	log := o.logger.With("exploration_id", id, "provider", p.Name())
	defer func() {
		if r := recover(); r != nil {
			log.Warn("exploration: session watcher panicked", "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, o.config.SideChannelTimeout)
	defer cancel()

	ticker := time.NewTicker(o.config.SidePollInterval)
	defer ticker.Stop()

	// Phase 1: the session id.
	idCtx, idCancel := context.WithTimeout(ctx, o.config.SessionIDTimeout)
	sid := h.SessionID()
	for sid == "" {
		select {
		case <-idCtx.Done():
			idCancel()
			log.Debug("exploration: no session id", "error", idCtx.Err())
			return
		case <-ticker.C:
			sid = h.SessionID()
		}
	}
	idCancel()

	if ok, err := o.store.AttachSession(ctx, id, sid, "", ""); err != nil {
		log.Debug("exploration: attach session", "error", err)
	} else if !ok {
		return
	}

	// Phase 2: the live URL.
	for {
		s, err := p.Session(ctx, h)
		switch {
		case err != nil:
			log.Debug("exploration: session lookup", "error", err)
		case s != nil && s.LiveURL != "":
			ok, err := o.store.AttachSession(ctx, id, s.SessionID, "", s.LiveURL)
			if err != nil {
				log.Debug("exploration: attach live url", "error", err)
			} else if ok {
				log.Info("exploration: live url", "live_url", s.LiveURL)
			}
			return
		}
		select {
		case <-ctx.Done():
			log.Debug("exploration: live url not found", "error", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}
