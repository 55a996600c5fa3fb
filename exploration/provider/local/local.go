// Package local is the in-process future-style provider. It drives a
// headless Chrome through rod, crawls a handful of same-site pages and
// submits a README and a sitemap to the knowledge base through the
// connectivity router, so it works against a local or a remote radar.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/radar/exploration/provider"
	"github.com/hazyhaar/radar/horosafe"
	"github.com/hazyhaar/radar/knowledge"
)

// Name is the provider tag.
const Name = "local"

// Caller submits knowledge; *connectivity.Router satisfies it.
type Caller interface {
	Call(ctx context.Context, service string, payload []byte) ([]byte, error)
}

// Config configures the local provider.
type Config struct {
	// Contributor is the name submissions are credited to. Required.
	Contributor string `json:"contributor" yaml:"contributor"`

	// ChromeBin overrides the Chrome binary found by the launcher.
	ChromeBin string `json:"chrome_bin" yaml:"chrome_bin"`
	// RemoteURL connects to an already running Chrome (ws://...) instead
	// of launching one.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	MaxPages        int           `json:"max_pages" yaml:"max_pages"`
	MaxContentBytes int           `json:"max_content_bytes" yaml:"max_content_bytes"`
	NavTimeout      time.Duration `json:"nav_timeout" yaml:"nav_timeout"`
	MaxRunTime      time.Duration `json:"max_run_time" yaml:"max_run_time"`
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.MaxContentBytes <= 0 {
		c.MaxContentBytes = 20_000
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.MaxRunTime <= 0 {
		c.MaxRunTime = 15 * time.Minute
	}
}

// Option customises the provider.
type Option func(*Provider)

// WithBrowserFactory replaces the rod launcher.
func WithBrowserFactory(f BrowserFactory) Option {
	return func(p *Provider) { p.newBrowser = f }
}

// WithURLValidator overrides the check applied to the exploration URL and
// to every crawled page (default: horosafe.ValidateURL).
func WithURLValidator(fn func(string) error) Option {
	return func(p *Provider) { p.validateURL = fn }
}

// Provider implements provider.Provider.
type Provider struct {
	config      *Config
	caller      Caller
	logger      *slog.Logger
	newBrowser  BrowserFactory
	validateURL func(string) error
	markdown    *markdownConverter
}

// New returns a local provider submitting through caller.
func New(cfg *Config, caller Caller, logger *slog.Logger, opts ...Option) *Provider {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		config:      cfg,
		caller:      caller,
		logger:      logger,
		validateURL: horosafe.ValidateURL,
		markdown:    newMarkdownConverter(),
	}
	p.newBrowser = rodFactory(cfg, logger)
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Check() error {
	if p.caller == nil {
		return &provider.ConfigurationError{Provider: Name, Missing: "knowledge router"}
	}
	if strings.TrimSpace(p.config.Contributor) == "" {
		return &provider.ConfigurationError{Provider: Name, Missing: "contributor name"}
	}
	return nil
}

// Launch starts the browser synchronously, so an unreachable Chrome or a
// URL pointing into a private network is a LaunchError, then crawls in the
// background.
func (p *Provider) Launch(ctx context.Context, req *provider.LaunchRequest) (*provider.Handle, error) {
	if err := p.validateURL(req.URL); err != nil {
		return nil, &provider.LaunchError{Provider: Name, Err: err}
	}
	b, err := p.newBrowser(ctx)
	if err != nil {
		return nil, &provider.LaunchError{Provider: Name, Err: err}
	}

	h := provider.NewHandle(req.ExplorationID, "local-"+req.ExplorationID)
	h.Future = provider.NewFuture()

	runCtx, cancel := context.WithTimeout(context.Background(), p.config.MaxRunTime)
	h.OnRelease(cancel)
	go func() {
		defer cancel()
		res, err := p.explore(runCtx, b, req)
		// The browser is gone before anyone sees the result.
		if cerr := b.Close(); cerr != nil {
			p.logger.Debug("local: close browser", "error", cerr)
		}
		h.Future.Resolve(res, err)
	}()
	return h, nil
}

// Poll returns the resolved result, or running while the crawl is alive.
func (p *Provider) Poll(_ context.Context, h *provider.Handle) (*provider.RunResult, error) {
	res, err := h.Future.Snapshot()
	if err != nil {
		return nil, &provider.PollError{Provider: Name, Err: err}
	}
	return res, nil
}

// Session reports the local session id. There is no live view.
func (p *Provider) Session(_ context.Context, h *provider.Handle) (*provider.Session, error) {
	return &provider.Session{SessionID: h.SessionID()}, nil
}

func (p *Provider) explore(ctx context.Context, b Browser, req *provider.LaunchRequest) (*provider.RunResult, error) {
	log := p.logger.With("exploration_id", req.ExplorationID, "domain", req.Domain)

	pages, landingHTML, err := p.crawl(ctx, b, req)
	if err != nil {
		return &provider.RunResult{Status: provider.StatusFailed, ResultText: err.Error()}, nil
	}
	log.Info("local: crawl done", "pages", len(pages))

	n := 0
	files := []*knowledge.SubmitRequest{
		p.readme(req, pages[0], landingHTML),
		p.sitemap(req, pages),
	}
	for _, f := range files {
		if err := p.submit(ctx, f); err != nil {
			log.Warn("local: submit failed", "path", f.Path, "error", err)
			continue
		}
		n++
	}

	res := &provider.RunResult{
		Status: provider.StatusCompleted,
		Output: fmt.Sprintf("Visited %d pages.\nEXPLORATION_COMPLETE: %d files submitted for %s", len(pages), n, req.Domain),
	}
	if n == 0 {
		res.Status = provider.StatusFailed
		res.ResultText = "no file could be submitted"
	}
	return res, nil
}

// crawl visits the landing page then same-site links breadth first, up to
// MaxPages. Only a landing page failure is fatal.
func (p *Provider) crawl(ctx context.Context, b Browser, req *provider.LaunchRequest) ([]*pageInfo, string, error) {
	var (
		pages       []*pageInfo
		landingHTML string
		queue       = []string{req.URL}
		seen        = map[string]bool{req.URL: true}
	)
	for len(queue) > 0 && len(pages) < p.config.MaxPages {
		if err := ctx.Err(); err != nil {
			if len(pages) == 0 {
				return nil, "", err
			}
			break
		}
		next := queue[0]
		queue = queue[1:]

		page, info, err := p.visit(ctx, b, next)
		if err != nil {
			if len(pages) == 0 {
				return nil, "", fmt.Errorf("landing page %s: %w", next, err)
			}
			p.logger.Debug("local: skip page", "url", next, "error", err)
			continue
		}
		if len(pages) == 0 {
			landingHTML = page.HTML
		}
		pages = append(pages, info)
		for _, l := range info.Links {
			if seen[l] || !sameSite(l, req.Domain) {
				continue
			}
			seen[l] = true
			if err := p.validateURL(l); err != nil {
				p.logger.Warn("local: refusing link", "url", l, "error", err)
				continue
			}
			queue = append(queue, l)
		}
	}
	return pages, landingHTML, nil
}

func (p *Provider) visit(ctx context.Context, b Browser, pageURL string) (*Page, *pageInfo, error) {
	page, err := b.Fetch(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	// Redirects may land somewhere else.
	if page.URL != pageURL {
		if err := p.validateURL(page.URL); err != nil {
			return nil, nil, err
		}
	}
	info, err := analyze(page.URL, page.HTML)
	if err != nil {
		return nil, nil, err
	}
	return page, info, nil
}

func (p *Provider) submit(ctx context.Context, req *knowledge.SubmitRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	out, err := p.caller.Call(ctx, "radar_submit_file", payload)
	if err != nil {
		return err
	}
	var res knowledge.SubmitResult
	if err := json.Unmarshal(out, &res); err != nil {
		return fmt.Errorf("decode submit result: %w", err)
	}
	p.logger.Debug("local: file submitted", "domain", req.Domain, "path", req.Path, "version", res.Version)
	return nil
}

func (p *Provider) baseRequest(req *provider.LaunchRequest) *knowledge.SubmitRequest {
	requiresAuth := false
	return &knowledge.SubmitRequest{
		Domain:          req.Domain,
		Confidence:      "low",
		RequiresAuth:    &requiresAuth,
		RelatedFiles:    []string{},
		ContributorName: p.config.Contributor,
		ChangeReason:    "automated local exploration " + req.ExplorationID,
		AgentType:       "radar-local",
	}
}

func (p *Provider) readme(req *provider.LaunchRequest, landing *pageInfo, landingHTML string) *knowledge.SubmitRequest {
	title := landing.Title
	if title == "" {
		title = req.Domain
	}
	summary := landing.Description
	if summary == "" {
		summary = "Landing page of " + req.Domain + ": " + title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if landing.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", landing.Description)
	}
	fmt.Fprintf(&b, "Entry point: %s\n", landing.URL)
	if req.Instructions != "" {
		fmt.Fprintf(&b, "\nExplored with instructions: %s\n", req.Instructions)
	}
	if md := p.markdown.convert(landingHTML, landing.URL, p.config.MaxContentBytes); md != "" {
		fmt.Fprintf(&b, "\n## Landing page content\n\n%s\n", md)
	}

	sr := p.baseRequest(req)
	sr.Path = "README"
	sr.Type = "readme"
	sr.Title = title
	sr.Summary = truncateRunes(summary, 300)
	sr.Tags = []string{"overview", "auto-explored"}
	sr.Entities = &knowledge.Entities{Primary: title, Disambiguation: "website at " + req.Domain, RelatedConcepts: []string{}}
	sr.Intent = &knowledge.Intent{CoreQuestion: "What is " + req.Domain + " and what can be done there?", Audience: "browser-agent"}
	sr.Content = b.String()
	sr.RelatedFiles = []string{"sitemap.md"}
	return sr
}

func (p *Provider) sitemap(req *provider.LaunchRequest, pages []*pageInfo) *knowledge.SubmitRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sitemap of %s\n\n", req.Domain)
	for _, pg := range pages {
		title := pg.Title
		if title == "" {
			title = pg.URL
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", title, pg.URL)
		if pg.Description != "" {
			fmt.Fprintf(&b, "  %s\n", pg.Description)
		}
	}

	sr := p.baseRequest(req)
	sr.Path = "sitemap.md"
	sr.Type = "sitemap"
	sr.Title = "Sitemap of " + req.Domain
	sr.Summary = fmt.Sprintf("%d pages reachable from the landing page of %s", len(pages), req.Domain)
	sr.Tags = []string{"sitemap", "navigation", "auto-explored"}
	sr.Entities = &knowledge.Entities{Primary: req.Domain, Disambiguation: "page map of " + req.Domain, RelatedConcepts: []string{}}
	sr.Intent = &knowledge.Intent{CoreQuestion: "Which pages exist on " + req.Domain + "?", Audience: "browser-agent"}
	sr.Content = b.String()
	sr.RelatedFiles = []string{"README"}
	return sr
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
