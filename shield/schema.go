package shield

import "database/sql"

// Schema defines the rate_limits table read by RateLimiter. Endpoints are
// keyed "METHOD /path". The write endpoints get default rules; read
// endpoints are unlimited unless a row is added.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds) VALUES
    ('POST /api/submit-file', 120, 60),
    ('POST /api/explorations', 10, 60);
`

// Init creates the shield tables if they don't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
