package provider

import "fmt"

// ConfigurationError reports missing provider configuration. The
// exploration fails without any provider call and is never retried.
type ConfigurationError struct {
	Provider string
	Missing  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Provider, e.Missing)
}

// LaunchError reports that the provider rejected or could not be reached
// for a launch. Not retried.
type LaunchError struct {
	Provider string
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: launch: %v", e.Provider, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// PollError is a transient status-check failure. The orchestrator logs it
// and polls again.
type PollError struct {
	Provider string
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("%s: poll: %v", e.Provider, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }
