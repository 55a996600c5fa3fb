package store

// Schema creates the explorations table. Status only moves
// queued -> running -> {completed, failed}; completed_at is set exactly
// when the status is terminal. The trigger backs up the guarded UPDATEs.
const Schema = `
CREATE TABLE IF NOT EXISTS explorations (
    id              TEXT PRIMARY KEY,
    domain          TEXT NOT NULL,
    url             TEXT NOT NULL,
    instructions    TEXT NOT NULL DEFAULT '',
    provider        TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'queued'
                    CHECK (status IN ('queued', 'running', 'completed', 'failed')),
    session_id      TEXT,
    execution_id    TEXT,
    live_url        TEXT,
    files_generated INTEGER NOT NULL DEFAULT 0,
    result_summary  TEXT NOT NULL DEFAULT '',
    started_at      INTEGER NOT NULL,
    completed_at    INTEGER,
    CHECK ((status IN ('completed', 'failed')) = (completed_at IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS idx_explorations_status ON explorations(status, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_explorations_started ON explorations(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_explorations_domain ON explorations(domain, started_at DESC);

CREATE TRIGGER IF NOT EXISTS explorations_transition
BEFORE UPDATE OF status ON explorations
WHEN NEW.status != OLD.status AND NOT (
    (OLD.status = 'queued' AND NEW.status = 'running') OR
    (OLD.status = 'running' AND NEW.status IN ('completed', 'failed'))
)
BEGIN
    SELECT RAISE(ABORT, 'invalid exploration status transition');
END;
`
