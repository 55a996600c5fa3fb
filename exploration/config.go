package exploration

import "time"

// Config holds the orchestrator configuration.
type Config struct {
	DBPath string `json:"db_path" yaml:"db_path"`

	// DefaultProvider is used when Start gets no provider tag. Default: "asteroid".
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`

	// PollInterval spaces status checks of poll-style providers. Default: 5s.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// MaxDuration bounds a whole run. Default: 15m.
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration"`

	// LaunchTimeout bounds the provider launch call. Default: 30s.
	LaunchTimeout time.Duration `json:"launch_timeout" yaml:"launch_timeout"`

	// SideChannelTimeout bounds session discovery. Default: 40s.
	SideChannelTimeout time.Duration `json:"side_channel_timeout" yaml:"side_channel_timeout"`

	// SessionIDTimeout is how long session discovery waits for a session
	// id before giving up. Default: 10s.
	SessionIDTimeout time.Duration `json:"session_id_timeout" yaml:"session_id_timeout"`

	// SidePollInterval spaces session lookups. Default: 2s.
	SidePollInterval time.Duration `json:"side_poll_interval" yaml:"side_poll_interval"`

	// Workers caps concurrent runs. Default: 4.
	Workers int `json:"workers" yaml:"workers"`

	// QueuePollInterval spaces claims on the run queue. Default: 500ms.
	QueuePollInterval time.Duration `json:"queue_poll_interval" yaml:"queue_poll_interval"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "radar.db"
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = "asteroid"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 15 * time.Minute
	}
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = 30 * time.Second
	}
	if c.SideChannelTimeout <= 0 {
		c.SideChannelTimeout = 40 * time.Second
	}
	if c.SessionIDTimeout <= 0 {
		c.SessionIDTimeout = 10 * time.Second
	}
	if c.SidePollInterval <= 0 {
		c.SidePollInterval = 2 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueuePollInterval <= 0 {
		c.QueuePollInterval = 500 * time.Millisecond
	}
}
