package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/radar/audit"
	"github.com/hazyhaar/radar/dbopen"
	"github.com/hazyhaar/radar/knowledge/internal/store"
)

var complexities = []string{"low", "medium", "high"}

// SiteRequest is the body of PUT /api/sites/{domain}. Complexity and
// AuthRequired keep their stored value when omitted.
type SiteRequest struct {
	Domain       string   `json:"domain"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Complexity   string   `json:"complexity,omitempty"`
	AuthRequired *bool    `json:"authRequired,omitempty"`
}

func (r *SiteRequest) validate() (*store.Site, error) {
	domain := NormalizeDomain(r.Domain)
	if domain == "" {
		return nil, invalid("domain", "is required")
	}
	if err := required("name", r.Name); err != nil {
		return nil, err
	}
	if r.Tags == nil {
		return nil, invalid("tags", "is required")
	}
	site := &store.Site{
		Domain:       domain,
		Name:         strings.TrimSpace(r.Name),
		Description:  strings.TrimSpace(r.Description),
		Tags:         cleanTags(r.Tags),
		AuthRequired: r.AuthRequired,
	}
	if r.Complexity != "" {
		if err := oneOf("complexity", r.Complexity, complexities); err != nil {
			return nil, err
		}
		site.Complexity = r.Complexity
	}
	return site, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// UpsertSite creates or updates the metadata of a site. Creating a site
// this way awards no points and leaves its file count at zero; submissions
// later add to it as usual. created reports whether the site is new.
func (s *Service) UpsertSite(ctx context.Context, req *SiteRequest) (site *Site, created bool, err error) {
	start := s.now()
	defer func() {
		if s.audit == nil || req == nil {
			return
		}
		params := map[string]any{"domain": req.Domain, "created": created}
		s.audit.LogAsync(audit.NewEntry(ctx, "upsert_site", NormalizeDomain(req.Domain), params, err, s.now().Sub(start)))
	}()

	want, err := req.validate()
	if err != nil {
		return nil, false, err
	}

	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		now := s.now().UnixMilli()
		existing, err := tx.GetSite(ctx, want.Domain)
		if err != nil {
			return err
		}
		want.LastUpdated = now
		if existing == nil {
			want.ID = s.newID()
			err := tx.CreateSite(ctx, want)
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: %w", dbopen.ErrRetry, err)
			}
			created = err == nil
			return err
		}
		want.ID = existing.ID
		created = false
		return tx.UpdateSite(ctx, want)
	})
	if err != nil {
		return nil, false, fmt.Errorf("knowledge: upsert site %s: %w", want.Domain, err)
	}

	site, err = s.store.GetSite(ctx, want.Domain)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("knowledge: site upserted", "domain", want.Domain, "created", created, "complexity", site.Complexity)
	return site, created, nil
}
