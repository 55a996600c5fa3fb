package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/radar/connectivity"
	"github.com/hazyhaar/radar/exploration"
	"github.com/hazyhaar/radar/exploration/provider/asteroid"
	"github.com/hazyhaar/radar/exploration/provider/browseruse"
	"github.com/hazyhaar/radar/exploration/provider/local"
	"github.com/hazyhaar/radar/knowledge"
)

// Config is the radar binary configuration. Every section is optional.
type Config struct {
	DB        string `yaml:"db"`
	Addr      string `yaml:"addr"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`

	Knowledge   knowledge.Config   `yaml:"knowledge"`
	Exploration exploration.Config `yaml:"exploration"`

	Asteroid   asteroid.Config   `yaml:"asteroid"`
	BrowserUse browseruse.Config `yaml:"browseruse"`
	Local      local.Config      `yaml:"local"`

	// Routes are written to the connectivity routes table at startup, e.g.
	// to send radar_submit_file to another instance.
	Routes []connectivity.Route `yaml:"routes"`
}

// LoadConfigFile reads a YAML config. An empty path returns an empty
// config.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overrides config values with the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.DB, "RADAR_DB")
	set(&c.Addr, "RADAR_ADDR")
	set(&c.PublicURL, "RADAR_PUBLIC_URL")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.Asteroid.APIKey, "ASTEROID_API_KEY")
	set(&c.Asteroid.AgentID, "ASTEROID_AGENT_ID")
	set(&c.BrowserUse.APIKey, "BROWSER_USE_API_KEY")
	set(&c.Local.Contributor, "RADAR_LOCAL_CONTRIBUTOR")
	set(&c.Local.RemoteURL, "RADAR_CHROME_URL")
}

func (c *Config) defaults() {
	if c.DB == "" {
		c.DB = "radar.db"
	}
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Local.Contributor == "" {
		c.Local.Contributor = "radar-local"
	}
	c.Knowledge.DBPath = c.DB
	c.Exploration.DBPath = c.DB

	if c.PublicURL != "" {
		submit := strings.TrimRight(c.PublicURL, "/") + "/api/submit-file"
		if c.Asteroid.SubmitURL == "" {
			c.Asteroid.SubmitURL = submit
		}
		if c.BrowserUse.SubmitURL == "" {
			c.BrowserUse.SubmitURL = submit
		}
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
