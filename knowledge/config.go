package knowledge

// Config holds the knowledge service configuration.
type Config struct {
	DBPath string `json:"db_path" yaml:"db_path"`

	// MaxSummaryLen caps the summary field. Default: 300.
	MaxSummaryLen int `json:"max_summary_len" yaml:"max_summary_len"`

	// SiteTags is how many of the first file's tags seed a new site. Default: 3.
	SiteTags int `json:"site_tags" yaml:"site_tags"`

	// SearchLimit bounds search results when the caller gives no limit. Default: 20.
	SearchLimit int `json:"search_limit" yaml:"search_limit"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "radar.db"
	}
	if c.MaxSummaryLen <= 0 {
		c.MaxSummaryLen = 300
	}
	if c.SiteTags <= 0 {
		c.SiteTags = 3
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 20
	}
}
