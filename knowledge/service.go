// Package knowledge is radar's versioned knowledge base about websites.
//
// Agents submit knowledge files per (domain, path). Every submission bumps
// the file version by exactly one, appends a full-content contribution to
// the ledger and credits the contributor:
//
//	new site + new file  15 points
//	new file              5 points
//	update                3 points
//
// The four writes of a submission commit in one immediate-lock SQLite
// transaction. Version bumps are also compare-and-swapped, and a lost race
// reruns the whole transaction, so concurrent writers never produce a gap
// or a duplicate version.
//
// Usage:
//
//	svc, err := knowledge.New(&knowledge.Config{DBPath: "radar.db"}, logger)
//	defer svc.Close()
//	svc.RegisterMCP(mcpServer)
//	svc.RegisterConnectivity(router)
//	r.Mount("/api", svc.Routes())
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gobwas/glob"

	"github.com/hazyhaar/radar/audit"
	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/idgen"
	"github.com/hazyhaar/radar/knowledge/internal/ledger"
	"github.com/hazyhaar/radar/knowledge/internal/store"
)

// Service is the knowledge base: submissions and reads.
type Service struct {
	store  *store.Store
	logger *slog.Logger
	config *Config
	newID  idgen.Generator
	now    func() time.Time
	audit  audit.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAudit records every submission, accepted or rejected, in a.
func WithAudit(a audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// New opens the knowledge database and returns the service.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	svc := newService(s, cfg, logger)
	for _, o := range opts {
		o(svc)
	}
	return svc, nil
}

func newService(s *store.Store, cfg *Config, logger *slog.Logger) *Service {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		logger: logger,
		config: cfg,
		newID:  idgen.Default,
		now:    time.Now,
	}
}

// Close closes the database.
func (s *Service) Close() error {
	return s.store.Close()
}

// SubmitRequest is the body of POST /api/submit-file. Pointer fields
// distinguish "missing" from the zero value.
type SubmitRequest struct {
	Domain          string    `json:"domain"`
	Path            string    `json:"path"`
	Type            string    `json:"type,omitempty"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Tags            []string  `json:"tags"`
	Entities        *Entities `json:"entities"`
	Intent          *Intent   `json:"intent"`
	Confidence      string    `json:"confidence"`
	RequiresAuth    *bool     `json:"requiresAuth"`
	ScriptLanguage  string    `json:"scriptLanguage,omitempty"`
	SelectorsCount  *int      `json:"selectorsCount,omitempty"`
	RelatedFiles    []string  `json:"relatedFiles"`
	Content         string    `json:"content"`
	ContributorName string    `json:"contributorName"`
	ChangeReason    string    `json:"changeReason"`
	AgentType       string    `json:"agentType,omitempty"`
}

type submission struct {
	domain          string
	path            string
	frontmatter     Frontmatter
	content         string
	contributorName string
	changeReason    string
	agentType       string
}

// Submit applies one knowledge submission atomically and returns the file
// id, its new version and the points awarded. A *ValidationError means the
// request was rejected before any write.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (res *SubmitResult, err error) {
	start := s.now()
	defer func() { s.auditSubmit(ctx, req, res, err, s.now().Sub(start)) }()

	sub, err := req.validate(s.config)
	if err != nil {
		return nil, err
	}

	conflicts := 0
	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		r, err := s.submitTx(ctx, tx, sub)
		if errors.Is(err, store.ErrConflict) {
			conflicts++
			return fmt.Errorf("%w: %w", dbopen.ErrRetry, err)
		}
		res = r
		return err
	})
	if err != nil {
		s.logger.Warn("knowledge: submit failed",
			"domain", sub.domain, "path", sub.path, "contributor", sub.contributorName,
			"conflicts", conflicts, "error", err)
		return nil, fmt.Errorf("knowledge: submit %s/%s: %w", sub.domain, sub.path, err)
	}

	s.logger.Info("knowledge: file submitted",
		"domain", sub.domain, "path", sub.path, "file_id", res.FileID,
		"version", res.Version, "points", res.PointsAwarded,
		"contributor", sub.contributorName, "conflicts", conflicts)
	return res, nil
}

func (s *Service) auditSubmit(ctx context.Context, req *SubmitRequest, res *SubmitResult, err error, d time.Duration) {
	if s.audit == nil || req == nil {
		return
	}
	params := map[string]any{"domain": req.Domain, "path": req.Path, "changeReason": req.ChangeReason}
	if res != nil {
		params["fileId"] = res.FileID
		params["version"] = res.Version
		params["points"] = res.PointsAwarded
	}
	s.audit.LogAsync(audit.NewEntry(ctx, "submit_file", req.ContributorName, params, err, d))
}

// submitTx is one attempt of a submission. Any ErrConflict it returns
// rolls back everything it wrote.
func (s *Service) submitTx(ctx context.Context, tx *store.Tx, sub *submission) (*SubmitResult, error) {
	now := s.now().UnixMilli()

	site, err := tx.GetSite(ctx, sub.domain)
	if err != nil {
		return nil, err
	}
	isNewSite := site == nil
	if isNewSite {
		tags := sub.frontmatter.Tags
		if len(tags) > s.config.SiteTags {
			tags = tags[:s.config.SiteTags]
		}
		site = &store.Site{
			ID:          s.newID(),
			Domain:      sub.domain,
			Name:        sub.domain,
			Description: sub.frontmatter.Summary,
			Tags:        tags,
			LastUpdated: now,
		}
		if err := tx.CreateSite(ctx, site); err != nil {
			return nil, err
		}
	}

	existing, err := tx.GetFile(ctx, sub.domain, sub.path)
	if err != nil {
		return nil, err
	}

	file := &store.File{
		SiteID:           site.ID,
		Domain:           sub.domain,
		Path:             sub.path,
		Frontmatter:      sub.frontmatter,
		LastUpdated:      now,
		LastContributor:  sub.contributorName,
		LastChangeReason: sub.changeReason,
		Content:          sub.content,
	}
	var previous *int
	if existing != nil {
		file.ID = existing.ID
		v := existing.Version
		previous = &v
		if err := tx.UpdateFile(ctx, file, existing.Version); err != nil {
			return nil, err
		}
	} else {
		file.ID = s.newID()
		if err := tx.InsertFile(ctx, file); err != nil {
			return nil, err
		}
	}

	if err := tx.TouchSite(ctx, site.ID, existing == nil, now); err != nil {
		return nil, err
	}

	points := ledger.Points(isNewSite, existing == nil)
	if _, err := ledger.Record(ctx, tx, ledger.Entry{
		ID:              s.newID(),
		File:            file,
		PreviousVersion: previous,
		ContributorName: sub.contributorName,
		AgentType:       sub.agentType,
		ChangeReason:    sub.changeReason,
		Points:          points,
		At:              now,
	}); err != nil {
		return nil, err
	}

	return &SubmitResult{FileID: file.ID, Version: file.Version, PointsAwarded: points}, nil
}

// --- reads ---

// GetSite returns the site for a domain, or (nil, nil).
func (s *Service) GetSite(ctx context.Context, domain string) (*Site, error) {
	return s.store.GetSite(ctx, NormalizeDomain(domain))
}

// ListSites returns every site, most recently updated first.
func (s *Service) ListSites(ctx context.Context) ([]*Site, error) {
	return s.store.ListSites(ctx)
}

// SearchSites searches site descriptions.
func (s *Service) SearchSites(ctx context.Context, query string, limit int) ([]*Site, error) {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}
	return s.store.SearchSites(ctx, query, limit)
}

// ListFiles returns the frontmatter of a domain's files, optionally only
// paths matching a glob ("flows/*", "**.md").
func (s *Service) ListFiles(ctx context.Context, domain, pattern string) ([]*File, error) {
	files, err := s.store.ListFiles(ctx, NormalizeDomain(domain))
	if err != nil || pattern == "" {
		return files, err
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, invalid("glob", "%v", err)
	}
	matched := []*File{}
	for _, f := range files {
		if g.Match(f.Path) {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

// GetFile returns a file with its content, or (nil, nil).
func (s *Service) GetFile(ctx context.Context, domain, path string) (*File, error) {
	return s.store.GetFile(ctx, NormalizeDomain(domain), normalizeLookupPath(path))
}

// SearchFiles searches file titles and content, optionally in one domain.
func (s *Service) SearchFiles(ctx context.Context, query, domain string, limit int) ([]*File, error) {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}
	if domain != "" {
		domain = NormalizeDomain(domain)
	}
	return s.store.SearchFiles(ctx, query, domain, limit)
}

// ListContributions returns recent contributions, optionally by one contributor.
func (s *Service) ListContributions(ctx context.Context, contributorName string, limit int) ([]*Contribution, error) {
	return s.store.ListContributions(ctx, contributorName, limit)
}

// FileHistory returns every contribution to a file, newest first.
// Unknown ids yield ErrNotFound.
func (s *Service) FileHistory(ctx context.Context, fileID string) ([]*Contribution, error) {
	f, err := s.store.GetFileByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNotFound
	}
	return s.store.ListFileContributions(ctx, fileID)
}

// Leaderboard returns contributors ranked by points.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*Contributor, error) {
	return s.store.Leaderboard(ctx, limit)
}

// GetContributor returns a contributor, or (nil, nil).
func (s *Service) GetContributor(ctx context.Context, name string) (*Contributor, error) {
	return s.store.GetContributor(ctx, name)
}

// Stats returns table counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// Audit recomputes the scoreboard, file counts and version histories from
// the ledger and returns any disagreement.
func (s *Service) Audit(ctx context.Context) ([]Discrepancy, error) {
	return s.store.Audit(ctx)
}

// Context returns the site overview for a domain, or (nil, nil) when radar
// knows nothing about it.
func (s *Service) Context(ctx context.Context, domain string) (*SiteContext, error) {
	site, err := s.GetSite(ctx, domain)
	if err != nil || site == nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, site.Domain)
	if err != nil {
		return nil, err
	}
	return &SiteContext{Site: site, Files: files}, nil
}

func normalizeLookupPath(p string) string {
	np, err := normalizePath(p)
	if err != nil {
		return p
	}
	return np
}
