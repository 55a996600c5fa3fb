package knowledge

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	fileTypes       = []string{"readme", "sitemap", "flow", "script", "selectors", "api", "guide"}
	scriptLanguages = []string{"playwright-ts", "playwright-py", "puppeteer", "selenium-py", "selenium-java", "cypress", "other"}
	audiences       = []string{"browser-agent", "coding-agent", "human", "any"}
	confidences     = []string{"low", "medium", "high"}
)

// ValidationError reports a malformed submission. Nothing has been written
// when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NormalizeDomain lowercases a domain and strips any scheme, port, path
// and leading "www.". A full URL is accepted.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil {
			d = u.Host
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 && !strings.Contains(d, "]") {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// normalizePath trims a knowledge file path and drops leading slashes.
func normalizePath(raw string) (string, error) {
	p := strings.TrimLeft(strings.TrimSpace(raw), "/")
	if p == "" {
		return "", invalid("path", "is required")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", invalid("path", "segment %q not allowed", seg)
		}
	}
	return p, nil
}

func oneOf(field, v string, allowed []string) error {
	if !slices.Contains(allowed, v) {
		return invalid(field, "must be one of %s, got %q", strings.Join(allowed, ", "), v)
	}
	return nil
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// validate checks r and returns the normalized submission.
func (r *SubmitRequest) validate(cfg *Config) (*submission, error) {
	domain := NormalizeDomain(r.Domain)
	if domain == "" {
		return nil, invalid("domain", "is required")
	}
	path, err := normalizePath(r.Path)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct{ name, v string }{
		{"title", r.Title},
		{"summary", r.Summary},
		{"content", r.Content},
		{"contributorName", r.ContributorName},
		{"changeReason", r.ChangeReason},
		{"confidence", r.Confidence},
	} {
		if err := required(f.name, f.v); err != nil {
			return nil, err
		}
	}
	if n := utf8.RuneCountInString(r.Summary); n > cfg.MaxSummaryLen {
		return nil, invalid("summary", "must be at most %d characters, got %d", cfg.MaxSummaryLen, n)
	}
	if r.Type != "" {
		if err := oneOf("type", r.Type, fileTypes); err != nil {
			return nil, err
		}
	}
	if r.Tags == nil {
		return nil, invalid("tags", "is required")
	}
	if r.Entities == nil {
		return nil, invalid("entities", "is required")
	}
	if err := required("entities.primary", r.Entities.Primary); err != nil {
		return nil, err
	}
	if err := required("entities.disambiguation", r.Entities.Disambiguation); err != nil {
		return nil, err
	}
	if r.Intent == nil {
		return nil, invalid("intent", "is required")
	}
	if err := required("intent.coreQuestion", r.Intent.CoreQuestion); err != nil {
		return nil, err
	}
	if err := oneOf("intent.audience", r.Intent.Audience, audiences); err != nil {
		return nil, err
	}
	if err := oneOf("confidence", r.Confidence, confidences); err != nil {
		return nil, err
	}
	if r.RequiresAuth == nil {
		return nil, invalid("requiresAuth", "is required")
	}
	if r.ScriptLanguage != "" {
		if err := oneOf("scriptLanguage", r.ScriptLanguage, scriptLanguages); err != nil {
			return nil, err
		}
	}
	if r.SelectorsCount != nil && *r.SelectorsCount < 0 {
		return nil, invalid("selectorsCount", "must be >= 0")
	}

	entities := *r.Entities
	if entities.RelatedConcepts == nil {
		entities.RelatedConcepts = []string{}
	}
	related := r.RelatedFiles
	if related == nil {
		related = []string{}
	}

	return &submission{
		domain: domain,
		path:   path,
		frontmatter: Frontmatter{
			Type:           r.Type,
			Title:          strings.TrimSpace(r.Title),
			Summary:        strings.TrimSpace(r.Summary),
			Tags:           r.Tags,
			Entities:       entities,
			Intent:         *r.Intent,
			Confidence:     r.Confidence,
			RequiresAuth:   *r.RequiresAuth,
			ScriptLanguage: r.ScriptLanguage,
			SelectorsCount: r.SelectorsCount,
			RelatedFiles:   related,
		},
		content:         r.Content,
		contributorName: strings.TrimSpace(r.ContributorName),
		changeReason:    r.ChangeReason,
		agentType:       strings.TrimSpace(r.AgentType),
	}, nil
}
