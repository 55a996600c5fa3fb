// Package asteroid is the poll-style provider backed by the Asteroid agents
// API: launch an execution of a preconfigured agent, then poll the
// execution until it reaches a terminal status.
package asteroid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/radar/exploration/provider"
)

// Name is the provider tag.
const Name = "asteroid"

var errMissingID = errors.New("response carries no execution id")

// Config configures the Asteroid provider.
type Config struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"-" yaml:"api_key"`
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// SubmitURL is the public POST /api/submit-file endpoint the agent
	// writes knowledge to.
	SubmitURL string `json:"submit_url" yaml:"submit_url"`

	// PlatformURL prefixes the execution id to form the live URL.
	PlatformURL string `json:"platform_url" yaml:"platform_url"`

	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://odyssey.asteroid.ai/api/v1"
	}
	if c.PlatformURL == "" {
		c.PlatformURL = "https://platform.asteroid.ai/executions/"
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
}

// New returns an Asteroid provider. client may be nil.
func New(cfg *Config, client *http.Client) *Provider {
	cfg.defaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Provider{config: cfg, client: client}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Check() error {
	switch {
	case p.config.APIKey == "":
		return &provider.ConfigurationError{Provider: Name, Missing: "ASTEROID_API_KEY"}
	case p.config.AgentID == "":
		return &provider.ConfigurationError{Provider: Name, Missing: "ASTEROID_AGENT_ID"}
	case p.config.SubmitURL == "":
		return &provider.ConfigurationError{Provider: Name, Missing: "public submit URL (RADAR_PUBLIC_URL)"}
	}
	return nil
}

func (p *Provider) header() http.Header {
	h := http.Header{}
	h.Set("X-Asteroid-Agents-Api-Key", p.config.APIKey)
	return h
}

type executeRequest struct {
	Inputs map[string]string `json:"inputs"`
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	ID          string `json:"id"`
}

func (p *Provider) Launch(ctx context.Context, req *provider.LaunchRequest) (*provider.Handle, error) {
	body := executeRequest{Inputs: map[string]string{
		"url":          req.URL,
		"domain":       req.Domain,
		"instructions": provider.TaskText(req, p.config.SubmitURL),
	}}
	var resp executeResponse
	endpoint := p.config.BaseURL + "/agents/" + url.PathEscape(p.config.AgentID) + "/execute"
	if err := provider.DoJSON(ctx, p.client, http.MethodPost, endpoint, p.header(), body, &resp); err != nil {
		return nil, &provider.LaunchError{Provider: Name, Err: err}
	}
	id := resp.ExecutionID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return nil, &provider.LaunchError{Provider: Name, Err: errMissingID}
	}
	// The execution is the session.
	return provider.NewHandle(id, id), nil
}

type executionResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (p *Provider) Poll(ctx context.Context, h *provider.Handle) (*provider.RunResult, error) {
	var resp executionResponse
	endpoint := p.config.BaseURL + "/executions/" + url.PathEscape(h.ExternalID)
	if err := provider.DoJSON(ctx, p.client, http.MethodGet, endpoint, p.header(), nil, &resp); err != nil {
		return nil, &provider.PollError{Provider: Name, Err: err}
	}
	return &provider.RunResult{
		Status:     mapStatus(resp.Status),
		Output:     resultText(resp.Result),
		ResultText: resp.Error,
	}, nil
}

func (p *Provider) Session(_ context.Context, h *provider.Handle) (*provider.Session, error) {
	return &provider.Session{
		SessionID: h.ExternalID,
		LiveURL:   p.config.PlatformURL + url.PathEscape(h.ExternalID),
	}, nil
}

func mapStatus(s string) provider.Status {
	switch strings.ToLower(s) {
	case "completed", "success", "succeeded":
		return provider.StatusCompleted
	case "failed", "error":
		return provider.StatusFailed
	case "cancelled", "canceled":
		return provider.StatusCancelled
	case "pending", "queued", "starting":
		return provider.StatusQueued
	default:
		return provider.StatusRunning
	}
}

// resultText flattens the execution result: a JSON string is unquoted,
// anything else is kept as raw JSON.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
