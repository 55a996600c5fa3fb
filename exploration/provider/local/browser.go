package local

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Page is a rendered page: its final URL after redirects and its HTML.
type Page struct {
	URL  string
	HTML string
}

// Browser renders pages.
type Browser interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Close() error
}

// BrowserFactory starts a browser for one exploration.
type BrowserFactory func(ctx context.Context) (Browser, error)

type rodBrowser struct {
	browser    *rod.Browser
	lnch       *launcher.Launcher
	navTimeout time.Duration
	logger     *slog.Logger
}

// rodFactory launches a local headless Chrome, or connects to RemoteURL.
func rodFactory(cfg *Config, logger *slog.Logger) BrowserFactory {
	return func(ctx context.Context) (Browser, error) {
		rb := &rodBrowser{navTimeout: cfg.NavTimeout, logger: logger}

		wsURL := cfg.RemoteURL
		if wsURL == "" {
			// The browser outlives the launch call; Close stops it.
			l := launcher.New().Context(context.WithoutCancel(ctx)).Headless(true)
			if cfg.ChromeBin != "" {
				l = l.Bin(cfg.ChromeBin)
			}
			l = l.Set("disable-blink-features", "AutomationControlled")
			u, err := l.Launch()
			if err != nil {
				return nil, fmt.Errorf("launch chrome: %w", err)
			}
			wsURL = u
			rb.lnch = l
		}

		b := rod.New().ControlURL(wsURL)
		if err := b.Connect(); err != nil {
			rb.Close()
			return nil, fmt.Errorf("connect chrome: %w", err)
		}
		rb.browser = b
		logger.Debug("local: browser ready", "control_url", wsURL)
		return rb, nil
	}
}

func (b *rodBrowser) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.navTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		b.logger.Warn("local: wait load", "url", pageURL, "error", err)
	}
	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("read DOM %s: %w", pageURL, err)
	}
	final := pageURL
	if info, err := p.Info(); err == nil && info.URL != "" {
		final = info.URL
	}
	return &Page{URL: final, HTML: html}, nil
}

func (b *rodBrowser) Close() error {
	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}
