package store

// Schema contains the complete DDL for the knowledge tables.
//
// sites and files carry an INTEGER seq primary key so the external-content
// FTS5 indexes keep stable rowids; the public identifier is id.
const Schema = `
CREATE TABLE IF NOT EXISTS sites (
    seq            INTEGER PRIMARY KEY,
    id             TEXT NOT NULL UNIQUE,
    domain         TEXT NOT NULL UNIQUE,
    name           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    tags           TEXT NOT NULL DEFAULT '[]',
    file_count     INTEGER NOT NULL DEFAULT 0,
    last_updated   INTEGER NOT NULL,
    complexity     TEXT CHECK (complexity IN ('low', 'medium', 'high')),
    auth_required  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_sites_updated ON sites(last_updated DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS sites_fts USING fts5(
    description,
    content='sites',
    content_rowid='seq',
    tokenize='unicode61 remove_diacritics 2'
);
CREATE TRIGGER IF NOT EXISTS sites_ai AFTER INSERT ON sites BEGIN
    INSERT INTO sites_fts(rowid, description) VALUES (new.seq, new.description);
END;
CREATE TRIGGER IF NOT EXISTS sites_ad AFTER DELETE ON sites BEGIN
    INSERT INTO sites_fts(sites_fts, rowid, description) VALUES ('delete', old.seq, old.description);
END;
CREATE TRIGGER IF NOT EXISTS sites_au AFTER UPDATE OF description ON sites BEGIN
    INSERT INTO sites_fts(sites_fts, rowid, description) VALUES ('delete', old.seq, old.description);
    INSERT INTO sites_fts(rowid, description) VALUES (new.seq, new.description);
END;

CREATE TABLE IF NOT EXISTS files (
    seq                 INTEGER PRIMARY KEY,
    id                  TEXT NOT NULL UNIQUE,
    site_id             TEXT NOT NULL REFERENCES sites(id),
    domain              TEXT NOT NULL,
    path                TEXT NOT NULL,
    type                TEXT NOT NULL DEFAULT '',
    title               TEXT NOT NULL,
    summary             TEXT NOT NULL,
    tags                TEXT NOT NULL DEFAULT '[]',
    entities            TEXT NOT NULL DEFAULT '{}',
    intent              TEXT NOT NULL DEFAULT '{}',
    confidence          TEXT NOT NULL CHECK (confidence IN ('low', 'medium', 'high')),
    requires_auth       INTEGER NOT NULL DEFAULT 0,
    script_language     TEXT NOT NULL DEFAULT '',
    selectors_count     INTEGER,
    related_files       TEXT NOT NULL DEFAULT '[]',
    version             INTEGER NOT NULL CHECK (version >= 1),
    last_updated        INTEGER NOT NULL,
    last_contributor    TEXT NOT NULL,
    last_change_reason  TEXT NOT NULL,
    content             TEXT NOT NULL,
    UNIQUE (domain, path)
);
CREATE INDEX IF NOT EXISTS idx_files_site ON files(site_id);
CREATE INDEX IF NOT EXISTS idx_files_confidence ON files(domain, confidence);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
    title,
    content,
    content='files',
    content_rowid='seq',
    tokenize='unicode61 remove_diacritics 2'
);
CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
    INSERT INTO files_fts(rowid, title, content) VALUES (new.seq, new.title, new.content);
END;
CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
    INSERT INTO files_fts(files_fts, rowid, title, content) VALUES ('delete', old.seq, old.title, old.content);
END;
CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE OF title, content ON files BEGIN
    INSERT INTO files_fts(files_fts, rowid, title, content) VALUES ('delete', old.seq, old.title, old.content);
    INSERT INTO files_fts(rowid, title, content) VALUES (new.seq, new.title, new.content);
END;

-- Append-only ledger. (file_id, new_version) is unique so a lost race can
-- never record the same version twice.
CREATE TABLE IF NOT EXISTS contributions (
    id                TEXT PRIMARY KEY,
    file_id           TEXT NOT NULL REFERENCES files(id),
    domain            TEXT NOT NULL,
    file_path         TEXT NOT NULL,
    contributor_name  TEXT NOT NULL,
    change_reason     TEXT NOT NULL,
    content_snapshot  TEXT NOT NULL,
    previous_version  INTEGER,
    new_version       INTEGER NOT NULL,
    points_awarded    INTEGER NOT NULL,
    created_at        INTEGER NOT NULL,
    UNIQUE (file_id, new_version)
);
CREATE INDEX IF NOT EXISTS idx_contributions_contributor ON contributions(contributor_name, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contributions_domain ON contributions(domain, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contributions_created ON contributions(created_at DESC);

CREATE TRIGGER IF NOT EXISTS contributions_no_update BEFORE UPDATE ON contributions BEGIN
    SELECT RAISE(ABORT, 'contributions are append-only');
END;
CREATE TRIGGER IF NOT EXISTS contributions_no_delete BEFORE DELETE ON contributions BEGIN
    SELECT RAISE(ABORT, 'contributions are append-only');
END;

CREATE TABLE IF NOT EXISTS contributors (
    name                TEXT PRIMARY KEY,
    agent_type          TEXT,
    total_points        INTEGER NOT NULL DEFAULT 0,
    contribution_count  INTEGER NOT NULL DEFAULT 0,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contributors_points ON contributors(total_points DESC);
`
