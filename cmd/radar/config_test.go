package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radar.yaml")
	os.WriteFile(path, []byte(`
db: /var/lib/radar/radar.db
addr: ":9090"
public_url: https://radar.example.org/
exploration:
  default_provider: local
  poll_interval: 3s
  workers: 2
asteroid:
  agent_id: agent-from-file
local:
  max_pages: 4
routes:
  - service: radar_submit_file
    strategy: http
    endpoint: https://radar.example.org/api/submit-file
    timeout_ms: 5000
`), 0o644)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{
		"ASTEROID_API_KEY":  "secret",
		"ASTEROID_AGENT_ID": "agent-from-env",
		"LOG_LEVEL":         "debug",
	}
	cfg.applyEnv(func(k string) string { return env[k] })
	cfg.defaults()

	if cfg.DB != "/var/lib/radar/radar.db" || cfg.Knowledge.DBPath != cfg.DB || cfg.Exploration.DBPath != cfg.DB {
		t.Errorf("db paths = %q %q %q", cfg.DB, cfg.Knowledge.DBPath, cfg.Exploration.DBPath)
	}
	if cfg.Addr != ":9090" || cfg.LogLevel != "debug" {
		t.Errorf("addr %q level %q", cfg.Addr, cfg.LogLevel)
	}
	if cfg.Exploration.DefaultProvider != "local" || cfg.Exploration.PollInterval != 3*time.Second || cfg.Exploration.Workers != 2 {
		t.Errorf("exploration = %+v", cfg.Exploration)
	}
	if cfg.Asteroid.APIKey != "secret" || cfg.Asteroid.AgentID != "agent-from-env" {
		t.Errorf("asteroid = %+v", cfg.Asteroid)
	}
	want := "https://radar.example.org/api/submit-file"
	if cfg.Asteroid.SubmitURL != want || cfg.BrowserUse.SubmitURL != want {
		t.Errorf("submit urls = %q %q", cfg.Asteroid.SubmitURL, cfg.BrowserUse.SubmitURL)
	}
	if cfg.Local.MaxPages != 4 || cfg.Local.Contributor != "radar-local" {
		t.Errorf("local = %+v", cfg.Local)
	}
	if len(cfg.Routes) != 1 || cfg.Routes[0].Strategy != "http" || cfg.Routes[0].TimeoutMs != 5000 {
		t.Errorf("routes = %+v", cfg.Routes)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	cfg, err := LoadConfigFile("")
	if err != nil || cfg == nil {
		t.Fatalf("empty path = %v, %v", cfg, err)
	}
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("exploration: [unterminated"), 0o644)
	if _, err := LoadConfigFile(bad); err == nil {
		t.Error("bad yaml: expected error")
	}
}
