package knowledge

import "github.com/hazyhaar/radar/knowledge/internal/store"

// Re-exported types from internal/store for cmd/ and other callers.
type (
	Site         = store.Site
	File         = store.File
	Frontmatter  = store.Frontmatter
	Entities     = store.Entities
	Intent       = store.Intent
	Contribution = store.Contribution
	Contributor  = store.Contributor
	Stats        = store.Stats
	Discrepancy  = store.Discrepancy
)

// ErrNotFound is returned by lookups that require the row to exist.
var ErrNotFound = store.ErrNotFound

// SubmitResult is returned by Submit.
type SubmitResult struct {
	FileID        string `json:"fileId"`
	Version       int    `json:"version"`
	PointsAwarded int    `json:"pointsAwarded"`
}

// SiteContext is the overview an agent reads before visiting a site: the
// site and the frontmatter of every file.
type SiteContext struct {
	Site  *Site   `json:"site"`
	Files []*File `json:"files"`
}
