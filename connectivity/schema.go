package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Schema defines the routes table. Each row maps a service name to a
// dispatch strategy:
//   - "local": the in-process handler registered via RegisterLocal.
//   - "http":  POST to endpoint via the HTTP transport factory.
//   - "noop":  succeed without doing anything.
//
// Any write bumps PRAGMA data_version, which Watch picks up.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

// Init creates the routes table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Route is one row of the routes table as written by configuration.
type Route struct {
	Service  string          `yaml:"service" json:"service"`
	Strategy string          `yaml:"strategy" json:"strategy"`
	Endpoint string          `yaml:"endpoint" json:"endpoint,omitempty"`
	Config   json.RawMessage `yaml:"-" json:"config,omitempty"`
	// TimeoutMs and MaxRetries are folded into Config when set.
	TimeoutMs  int64 `yaml:"timeout_ms" json:"-"`
	MaxRetries int   `yaml:"max_retries" json:"-"`
}

// SetRoute inserts or replaces a route.
func SetRoute(ctx context.Context, db *sql.DB, rt Route) error {
	cfg := rt.Config
	if len(cfg) == 0 {
		var err error
		cfg, err = json.Marshal(httpConfig{TimeoutMs: rt.TimeoutMs, MaxRetries: rt.MaxRetries})
		if err != nil {
			return err
		}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO routes (service_name, strategy, endpoint, config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			strategy = excluded.strategy,
			endpoint = excluded.endpoint,
			config = excluded.config,
			updated_at = strftime('%s', 'now')`,
		rt.Service, rt.Strategy, rt.Endpoint, string(cfg))
	if err != nil {
		return fmt.Errorf("connectivity: set route %s: %w", rt.Service, err)
	}
	return nil
}
