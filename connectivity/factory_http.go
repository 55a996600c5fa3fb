package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/radar/horosafe"
	"github.com/hazyhaar/radar/kit"
)

// maxHTTPResponseBody caps the response data read from remote endpoints.
const maxHTTPResponseBody int64 = 10 << 20

// httpConfig is the per-route config stored in the routes table.
type httpConfig struct {
	TimeoutMs   int64  `json:"timeout_ms,omitempty"`
	MaxRetries  int    `json:"max_retries,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type httpFactoryOptions struct {
	allowPrivate bool
	client       *http.Client
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*httpFactoryOptions)

// AllowPrivateEndpoints disables the SSRF guard, for deployments where the
// other radar instances live on a private network.
func AllowPrivateEndpoints() HTTPOption {
	return func(o *httpFactoryOptions) { o.allowPrivate = true }
}

// WithHTTPClient overrides the client used for remote calls. The per-route
// timeout still applies through the request context.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpFactoryOptions) { o.client = c }
}

// HTTPFactory creates Handlers that POST the JSON payload to a remote
// endpoint, typically another radar's /api/submit-file. Non-2xx responses
// become *ErrRemoteStatus. max_retries in the route config wraps the handler
// in WithRetry; 4xx responses are never retried.
//
//	router.RegisterTransport("http", connectivity.HTTPFactory())
func HTTPFactory(opts ...HTTPOption) TransportFactory {
	var o httpFactoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if o.allowPrivate {
			if _, err := horosafe.CheckScheme(endpoint); err != nil {
				return nil, nil, fmt.Errorf("connectivity/http: %w", err)
			}
		} else if err := horosafe.ValidateURL(endpoint); err != nil {
			return nil, nil, fmt.Errorf("connectivity/http: %w", err)
		}

		var cfg httpConfig
		if len(config) > 0 {
			_ = json.Unmarshal(config, &cfg)
		}
		timeout := 30 * time.Second
		if cfg.TimeoutMs > 0 {
			timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		contentType := "application/json"
		if cfg.ContentType != "" {
			contentType = cfg.ContentType
		}

		client := o.client
		if client == nil {
			client = &http.Client{}
		}

		var handler Handler = func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType)
			if id := kit.GetTraceID(ctx); id != "" {
				req.Header.Set("X-Trace-ID", id)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := horosafe.LimitedReadAll(resp.Body, maxHTTPResponseBody)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, &ErrRemoteStatus{Endpoint: endpoint, Status: resp.StatusCode, Body: string(body)}
			}
			return body, nil
		}
		if cfg.MaxRetries > 0 {
			handler = WithRetry(cfg.MaxRetries, 200*time.Millisecond, nil)(handler)
		}

		return handler, client.CloseIdleConnections, nil
	}
}
