package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Site is one website, keyed by its normalized domain.
type Site struct {
	ID           string   `json:"id"`
	Domain       string   `json:"domain"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	FileCount    int      `json:"fileCount"`
	LastUpdated  int64    `json:"lastUpdated"`
	Complexity   string   `json:"complexity,omitempty"`
	AuthRequired *bool    `json:"authRequired,omitempty"`
}

const siteColumns = `id, domain, name, description, tags, file_count, last_updated,
	COALESCE(complexity, ''), auth_required`

func scanSite(sc interface{ Scan(...any) error }) (*Site, error) {
	s := &Site{}
	var tags string
	var auth sql.NullInt64
	if err := sc.Scan(&s.ID, &s.Domain, &s.Name, &s.Description, &tags,
		&s.FileCount, &s.LastUpdated, &s.Complexity, &auth); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(tags), &s.Tags)
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if auth.Valid {
		b := auth.Int64 != 0
		s.AuthRequired = &b
	}
	return s, nil
}

func getSite(ctx context.Context, q queryer, domain string) (*Site, error) {
	s, err := scanSite(q.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE domain = ?`, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// GetSite retrieves a site by domain. Returns (nil, nil) if absent.
func (s *Store) GetSite(ctx context.Context, domain string) (*Site, error) {
	return getSite(ctx, s.DB, domain)
}

// ListSites returns all sites, most recently updated first.
func (s *Store) ListSites(ctx context.Context) ([]*Site, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+siteColumns+` FROM sites ORDER BY last_updated DESC, domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSites(rows)
}

// SearchSites runs a full-text search over site descriptions.
func (s *Store) SearchSites(ctx context.Context, query string, limit int) ([]*Site, error) {
	q := ftsQuery(query)
	if q == "" {
		return []*Site{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT s.id, s.domain, s.name, s.description, s.tags, s.file_count, s.last_updated,
		       COALESCE(s.complexity, ''), s.auth_required
		FROM sites_fts
		JOIN sites s ON s.seq = sites_fts.rowid
		WHERE sites_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search sites: %w", err)
	}
	defer rows.Close()
	return collectSites(rows)
}

func collectSites(rows *sql.Rows) ([]*Site, error) {
	sites := []*Site{}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// --- transactional writes ---

// GetSite reads a site inside the transaction. Returns (nil, nil) if absent.
func (t *Tx) GetSite(ctx context.Context, domain string) (*Site, error) {
	return getSite(ctx, t.tx, domain)
}

// CreateSite inserts a new site with file_count 0. It returns ErrConflict
// if another writer created the domain first, so the new-site bonus can
// never be awarded twice.
func (t *Tx) CreateSite(ctx context.Context, site *Site) error {
	if site.Tags == nil {
		site.Tags = []string{}
	}
	site.FileCount = 0
	if site.LastUpdated == 0 {
		site.LastUpdated = time.Now().UnixMilli()
	}
	var auth sql.NullInt64
	if site.AuthRequired != nil {
		auth = sql.NullInt64{Int64: int64(boolInt(*site.AuthRequired)), Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO sites (id, domain, name, description, tags, file_count, last_updated, complexity, auth_required)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(domain) DO NOTHING`,
		site.ID, site.Domain, site.Name, site.Description, marshalJSON(site.Tags),
		site.LastUpdated, nullString(site.Complexity), auth)
	if err != nil {
		return fmt.Errorf("store: create site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateSite rewrites the descriptive fields of a site. Complexity and
// AuthRequired are left alone when empty or nil. file_count is never
// touched.
func (t *Tx) UpdateSite(ctx context.Context, site *Site) error {
	if site.Tags == nil {
		site.Tags = []string{}
	}
	var auth sql.NullInt64
	if site.AuthRequired != nil {
		auth = sql.NullInt64{Int64: int64(boolInt(*site.AuthRequired)), Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sites SET
			name          = ?,
			description   = ?,
			tags          = ?,
			complexity    = COALESCE(?, complexity),
			auth_required = COALESCE(?, auth_required),
			last_updated  = ?
		WHERE id = ?`,
		site.Name, site.Description, marshalJSON(site.Tags), nullString(site.Complexity), auth,
		site.LastUpdated, site.ID)
	if err != nil {
		return fmt.Errorf("store: update site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSite bumps last_updated and, when a file was created, file_count.
func (t *Tx) TouchSite(ctx context.Context, siteID string, newFile bool, now int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sites SET last_updated = ?, file_count = file_count + ?
		WHERE id = ?`, now, boolInt(newFile), siteID)
	if err != nil {
		return fmt.Errorf("store: touch site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
