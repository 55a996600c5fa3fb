package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/radar/shield"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the MCP endpoint and the exploration workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, logger, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			handler, rl := newHandler(a)
			rl.StartReloader(ctx.Done())
			go a.router.Watch(ctx, a.db, 2*time.Second)

			workers := make(chan struct{})
			go func() {
				a.orch.Run(ctx)
				close(workers)
			}()

			srv := &http.Server{
				Addr:              a.cfg.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				logger.Info("radar: listening", "addr", a.cfg.Addr, "public_url", a.cfg.PublicURL)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if err != http.ErrServerClosed {
					return err
				}
			case <-ctx.Done():
			}

			logger.Info("radar: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("radar: shutdown", "error", err)
			}
			<-workers
			logger.Info("radar: stopped")
			return nil
		},
	}
}

// newHandler builds the HTTP surface: shield middleware, /health, the
// knowledge and exploration APIs under /api, and MCP over streamable HTTP
// at /mcp.
func newHandler(a *app) (http.Handler, *shield.RateLimiter) {
	r := chi.NewRouter()
	stack, rl := shield.APIStack(a.db, a.logger)
	for _, mw := range stack {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})

	r.Mount("/api", a.knowledge.Routes())
	r.Mount("/api/explorations", a.orch.Routes())

	srv := a.mcpServer()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	return r, rl
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
