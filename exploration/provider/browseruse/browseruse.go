// Package browseruse is the future-style provider backed by the Browser Use
// cloud API. Launch creates a task; a background goroutine follows it and
// resolves the handle's Future when the task ends.
package browseruse

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/radar/exploration/provider"
)

// Name is the provider tag.
const Name = "browseruse"

// Config configures the Browser Use provider.
type Config struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	APIKey    string `json:"-" yaml:"api_key"`
	Model     string `json:"model" yaml:"model"`
	SubmitURL string `json:"submit_url" yaml:"submit_url"`

	// PollInterval paces the background task follower. Default: 2s.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	// MaxRunTime bounds the follower. Default: 15m.
	MaxRunTime time.Duration `json:"max_run_time" yaml:"max_run_time"`
	// RequestTimeout bounds each API call. Default: 30s.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.browser-use.com/api/v2"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxRunTime <= 0 {
		c.MaxRunTime = 15 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Provider implements provider.Provider.
type Provider struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// New returns a Browser Use provider. client and logger may be nil.
func New(cfg *Config, client *http.Client, logger *slog.Logger) *Provider {
	cfg.defaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{config: cfg, client: client, logger: logger}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Check() error {
	if p.config.APIKey == "" {
		return &provider.ConfigurationError{Provider: Name, Missing: "BROWSER_USE_API_KEY"}
	}
	if p.config.SubmitURL == "" {
		return &provider.ConfigurationError{Provider: Name, Missing: "public submit URL (RADAR_PUBLIC_URL)"}
	}
	return nil
}

func (p *Provider) header() http.Header {
	h := http.Header{}
	h.Set("X-Browser-Use-API-Key", p.config.APIKey)
	return h
}

type createTaskRequest struct {
	Task     string `json:"task"`
	LLM      string `json:"llm,omitempty"`
	StartURL string `json:"startUrl,omitempty"`
}

type taskView struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Output    string `json:"output"`
	IsSuccess *bool  `json:"isSuccess"`
}

func (p *Provider) Launch(ctx context.Context, req *provider.LaunchRequest) (*provider.Handle, error) {
	var created taskView
	body := createTaskRequest{
		Task:     provider.TaskText(req, p.config.SubmitURL),
		LLM:      p.config.Model,
		StartURL: req.URL,
	}
	if err := provider.DoJSON(ctx, p.client, http.MethodPost, p.config.BaseURL+"/tasks", p.header(), body, &created); err != nil {
		return nil, &provider.LaunchError{Provider: Name, Err: err}
	}
	if created.ID == "" {
		return nil, &provider.LaunchError{Provider: Name, Err: errors.New("response carries no task id")}
	}

	h := provider.NewHandle(created.ID, created.SessionID)
	h.Future = provider.NewFuture()

	runCtx, cancel := context.WithTimeout(context.Background(), p.config.MaxRunTime)
	h.OnRelease(func() {
		cancel()
		p.stop(h)
	})
	go p.follow(runCtx, h)
	return h, nil
}

// follow polls the task until it ends and resolves the future.
func (p *Provider) follow(ctx context.Context, h *provider.Handle) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Future.Resolve(nil, ctx.Err())
			return
		case <-ticker.C:
		}
		task, err := p.getTask(ctx, h.ExternalID)
		if err != nil {
			p.logger.Debug("browseruse: task poll failed", "task_id", h.ExternalID, "error", err)
			continue
		}
		if task.SessionID != "" && h.SessionID() == "" {
			h.SetSessionID(task.SessionID)
		}
		if res := toResult(task); res.Status.Terminal() {
			h.Future.Resolve(res, nil)
			return
		}
	}
}

// stop asks Browser Use to stop a task the orchestrator gave up on.
func (p *Provider) stop(h *provider.Handle) {
	select {
	case <-h.Future.Done():
		return
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	endpoint := p.config.BaseURL + "/tasks/" + url.PathEscape(h.ExternalID)
	if err := provider.DoJSON(ctx, p.client, http.MethodPatch, endpoint, p.header(), map[string]string{"action": "stop"}, nil); err != nil {
		p.logger.Debug("browseruse: stop task failed", "task_id", h.ExternalID, "error", err)
	}
}

func (p *Provider) getTask(ctx context.Context, id string) (*taskView, error) {
	var task taskView
	endpoint := p.config.BaseURL + "/tasks/" + url.PathEscape(id)
	if err := provider.DoJSON(ctx, p.client, http.MethodGet, endpoint, p.header(), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Poll returns the resolved result, or running while the task is alive.
func (p *Provider) Poll(_ context.Context, h *provider.Handle) (*provider.RunResult, error) {
	res, err := h.Future.Snapshot()
	if err != nil {
		return nil, &provider.PollError{Provider: Name, Err: err}
	}
	return res, nil
}

type sessionView struct {
	ID         string     `json:"id"`
	LiveURL    string     `json:"liveUrl"`
	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
}

func (p *Provider) Session(ctx context.Context, h *provider.Handle) (*provider.Session, error) {
	sid := h.SessionID()
	if sid == "" {
		return &provider.Session{}, nil
	}
	var s sessionView
	endpoint := p.config.BaseURL + "/sessions/" + url.PathEscape(sid)
	if err := provider.DoJSON(ctx, p.client, http.MethodGet, endpoint, p.header(), nil, &s); err != nil {
		return nil, err
	}
	return &provider.Session{
		SessionID: sid,
		LiveURL:   s.LiveURL,
		StartedAt: s.StartedAt,
		UpdatedAt: s.FinishedAt,
	}, nil
}

func toResult(t *taskView) *provider.RunResult {
	res := &provider.RunResult{Output: t.Output}
	switch strings.ToLower(t.Status) {
	case "finished":
		res.Status = provider.StatusCompleted
		if t.IsSuccess != nil && !*t.IsSuccess {
			res.Status = provider.StatusFailed
			res.ResultText = "agent reported failure"
		}
	case "failed":
		res.Status = provider.StatusFailed
	case "stopped":
		res.Status = provider.StatusCancelled
	case "created":
		res.Status = provider.StatusQueued
	default:
		res.Status = provider.StatusRunning
	}
	return res
}
