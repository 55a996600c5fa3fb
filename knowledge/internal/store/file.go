package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/radar/dbopen"
)

// Entities names what a knowledge file is about.
type Entities struct {
	Primary         string   `json:"primary"`
	Disambiguation  string   `json:"disambiguation"`
	RelatedConcepts []string `json:"relatedConcepts"`
}

// Intent states the question a file answers and for whom.
type Intent struct {
	CoreQuestion string `json:"coreQuestion"`
	Audience     string `json:"audience"`
}

// Frontmatter is the structured metadata of a knowledge file.
type Frontmatter struct {
	Type           string   `json:"type,omitempty"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Tags           []string `json:"tags"`
	Entities       Entities `json:"entities"`
	Intent         Intent   `json:"intent"`
	Confidence     string   `json:"confidence"`
	RequiresAuth   bool     `json:"requiresAuth"`
	ScriptLanguage string   `json:"scriptLanguage,omitempty"`
	SelectorsCount *int     `json:"selectorsCount,omitempty"`
	RelatedFiles   []string `json:"relatedFiles"`
}

// File is a versioned knowledge document identified by (domain, path).
// Content is empty in listings and search results.
type File struct {
	ID     string `json:"id"`
	SiteID string `json:"siteId"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Frontmatter
	Version          int    `json:"version"`
	LastUpdated      int64  `json:"lastUpdated"`
	LastContributor  string `json:"lastContributor"`
	LastChangeReason string `json:"lastChangeReason"`
	Content          string `json:"content,omitempty"`
}

const fileMetaColumns = `id, site_id, domain, path, type, title, summary, tags, entities, intent,
	confidence, requires_auth, script_language, selectors_count, related_files,
	version, last_updated, last_contributor, last_change_reason`

func scanFile(sc interface{ Scan(...any) error }, withContent bool) (*File, error) {
	f := &File{}
	var tags, entities, intent, related string
	var requiresAuth int
	var selectors sql.NullInt64
	dest := []any{
		&f.ID, &f.SiteID, &f.Domain, &f.Path, &f.Type, &f.Title, &f.Summary,
		&tags, &entities, &intent, &f.Confidence, &requiresAuth, &f.ScriptLanguage,
		&selectors, &related, &f.Version, &f.LastUpdated, &f.LastContributor, &f.LastChangeReason,
	}
	if withContent {
		dest = append(dest, &f.Content)
	}
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	unmarshalInto(tags, &f.Tags)
	unmarshalInto(entities, &f.Entities)
	unmarshalInto(intent, &f.Intent)
	unmarshalInto(related, &f.RelatedFiles)
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if f.RelatedFiles == nil {
		f.RelatedFiles = []string{}
	}
	if f.Entities.RelatedConcepts == nil {
		f.Entities.RelatedConcepts = []string{}
	}
	f.RequiresAuth = requiresAuth != 0
	f.SelectorsCount = intPtr(selectors)
	return f, nil
}

func getFile(ctx context.Context, q queryer, domain, path string) (*File, error) {
	f, err := scanFile(q.QueryRowContext(ctx,
		`SELECT `+fileMetaColumns+`, content FROM files WHERE domain = ? AND path = ?`,
		domain, path), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// GetFile retrieves a file with its content. Returns (nil, nil) if absent.
func (s *Store) GetFile(ctx context.Context, domain, path string) (*File, error) {
	return getFile(ctx, s.DB, domain, path)
}

// GetFileByID retrieves a file with its content. Returns (nil, nil) if absent.
func (s *Store) GetFileByID(ctx context.Context, id string) (*File, error) {
	f, err := scanFile(s.DB.QueryRowContext(ctx,
		`SELECT `+fileMetaColumns+`, content FROM files WHERE id = ?`, id), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// ListFiles returns the frontmatter of every file of a domain, by path.
func (s *Store) ListFiles(ctx context.Context, domain string) ([]*File, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+fileMetaColumns+` FROM files WHERE domain = ? ORDER BY path`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

// SearchFiles runs a full-text search over file titles and content,
// optionally restricted to one domain. Results carry frontmatter only.
func (s *Store) SearchFiles(ctx context.Context, query, domain string, limit int) ([]*File, error) {
	q := ftsQuery(query)
	if q == "" {
		return []*File{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	where := []string{"files_fts MATCH ?"}
	args := []any{q}
	if domain != "" {
		where = append(where, "f.domain = ?")
		args = append(args, domain)
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT f.id, f.site_id, f.domain, f.path, f.type, f.title, f.summary, f.tags, f.entities, f.intent,
		       f.confidence, f.requires_auth, f.script_language, f.selectors_count, f.related_files,
		       f.version, f.last_updated, f.last_contributor, f.last_change_reason
		FROM files_fts
		JOIN files f ON f.seq = files_fts.rowid
		WHERE %s
		ORDER BY rank
		LIMIT ?`, strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("store: search files: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

func collectFiles(rows *sql.Rows) ([]*File, error) {
	files := []*File{}
	for rows.Next() {
		f, err := scanFile(rows, false)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- transactional writes ---

// GetFile reads a file inside the transaction. Returns (nil, nil) if absent.
func (t *Tx) GetFile(ctx context.Context, domain, path string) (*File, error) {
	return getFile(ctx, t.tx, domain, path)
}

// InsertFile creates version 1 of a file. A concurrent insert of the same
// (domain, path) yields ErrConflict.
func (t *Tx) InsertFile(ctx context.Context, f *File) error {
	f.Version = 1
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO files (id, site_id, domain, path, type, title, summary, tags, entities, intent,
			confidence, requires_auth, script_language, selectors_count, related_files,
			version, last_updated, last_contributor, last_change_reason, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		f.ID, f.SiteID, f.Domain, f.Path, f.Type, f.Title, f.Summary,
		marshalJSON(f.Tags), marshalJSON(f.Entities), marshalJSON(f.Intent),
		f.Confidence, boolInt(f.RequiresAuth), f.ScriptLanguage, nullInt(f.SelectorsCount),
		marshalJSON(f.RelatedFiles), f.LastUpdated, f.LastContributor, f.LastChangeReason, f.Content)
	if dbopen.IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("store: insert file: %w", err)
	}
	return nil
}

// UpdateFile overwrites the mutable fields of f and moves it from
// expectedVersion to expectedVersion+1. It returns ErrConflict when the
// stored version is no longer expectedVersion. A type of "" keeps the
// stored type.
func (t *Tx) UpdateFile(ctx context.Context, f *File, expectedVersion int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE files SET
			type = CASE WHEN ? = '' THEN type ELSE ? END,
			title = ?, summary = ?, tags = ?, entities = ?, intent = ?,
			confidence = ?, requires_auth = ?, script_language = ?, selectors_count = ?,
			related_files = ?, last_updated = ?, last_contributor = ?, last_change_reason = ?,
			content = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		f.Type, f.Type,
		f.Title, f.Summary, marshalJSON(f.Tags), marshalJSON(f.Entities), marshalJSON(f.Intent),
		f.Confidence, boolInt(f.RequiresAuth), f.ScriptLanguage, nullInt(f.SelectorsCount),
		marshalJSON(f.RelatedFiles), f.LastUpdated, f.LastContributor, f.LastChangeReason,
		f.Content, f.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("store: update file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	f.Version = expectedVersion + 1
	return nil
}
