package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/radar/audit"
	"github.com/hazyhaar/radar/connectivity"
	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/exploration"
	"github.com/hazyhaar/radar/exploration/provider"
	"github.com/hazyhaar/radar/exploration/provider/asteroid"
	"github.com/hazyhaar/radar/exploration/provider/browseruse"
	"github.com/hazyhaar/radar/exploration/provider/local"
	"github.com/hazyhaar/radar/idgen"
	"github.com/hazyhaar/radar/knowledge"
	"github.com/hazyhaar/radar/shield"
)

const version = "0.3.0"

// callTimeout bounds one connectivity call, local or remote.
const callTimeout = 30 * time.Second

// app holds the wired services of one radar process.
type app struct {
	cfg       *Config
	logger    *slog.Logger
	db        *sql.DB
	router    *connectivity.Router
	audit     *audit.SQLiteLogger
	knowledge *knowledge.Service
	orch      *exploration.Orchestrator
}

func openApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*app, error) {
	cfg.defaults()

	// Control tables: routes, rate limits and the audit trail.
	db, err := dbopen.Open(cfg.DB, dbopen.WithMkdirAll(),
		dbopen.WithSchema(connectivity.Schema), dbopen.WithSchema(shield.Schema),
		dbopen.WithSchema(audit.Schema))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DB, err)
	}
	a := &app{cfg: cfg, logger: logger, db: db}
	a.audit = audit.NewSQLiteLogger(db, audit.WithLogger(logger))

	for _, rt := range cfg.Routes {
		if err := connectivity.SetRoute(ctx, db, rt); err != nil {
			a.Close()
			return nil, fmt.Errorf("route %s: %w", rt.Service, err)
		}
	}

	a.router = connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(
			connectivity.Recovery(logger),
			connectivity.Tracing(idgen.NanoID(10)),
			connectivity.Logging(logger),
			connectivity.Timeout(callTimeout),
		),
	)
	a.router.RegisterTransport("http", connectivity.HTTPFactory())
	if err := a.router.Reload(ctx, db); err != nil {
		a.Close()
		return nil, fmt.Errorf("load routes: %w", err)
	}

	a.knowledge, err = knowledge.New(&cfg.Knowledge, logger, knowledge.WithAudit(a.audit))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("knowledge: %w", err)
	}
	a.knowledge.RegisterConnectivity(a.router)

	client := &http.Client{}
	reg := provider.NewRegistry(
		asteroid.New(&cfg.Asteroid, client),
		browseruse.New(&cfg.BrowserUse, client, logger),
		local.New(&cfg.Local, a.router, logger),
	)
	a.orch, err = exploration.New(&cfg.Exploration, reg, logger, exploration.WithAudit(a.audit))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("exploration: %w", err)
	}
	a.orch.RegisterConnectivity(a.router)
	return a, nil
}

func (a *app) mcpServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "radar", Version: version}, nil)
	a.knowledge.RegisterMCP(srv)
	a.orch.RegisterMCP(srv)
	return srv
}

func (a *app) Close() error {
	var errs []error
	if a.orch != nil {
		errs = append(errs, a.orch.Close())
	}
	if a.knowledge != nil {
		errs = append(errs, a.knowledge.Close())
	}
	if a.router != nil {
		errs = append(errs, a.router.Close())
	}
	errs = append(errs, a.audit.Close(), a.db.Close())
	return errors.Join(errs...)
}
