package exploration

import (
	"errors"
	"testing"
	"time"
)

func TestParseFilesGenerated(t *testing.T) {
	tests := []struct {
		output string
		want   int
	}{
		{"...EXPLORATION_COMPLETE: 7 files submitted for foo.com", 7},
		{"EXPLORATION_COMPLETE:12files", 12},
		{"line one\nEXPLORATION_COMPLETE:   3   files submitted\nbye", 3},
		{"EXPLORATION_COMPLETE: 0 files submitted for foo.com", 0},
		{"I submitted 4 files", 0},
		{"EXPLORATION_COMPLETE: some files", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseFilesGenerated(tt.output); got != tt.want {
			t.Errorf("ParseFilesGenerated(%q) = %d, want %d", tt.output, got, tt.want)
		}
	}
}

func TestSummaries(t *testing.T) {
	elapsed := 83*time.Second + 420*time.Millisecond
	tests := []struct {
		got, want string
	}{
		{completedSummary("foo.com", elapsed, 4), "Explored foo.com in 83.4s, submitted 4 files"},
		{failedSummary(elapsed, "task failed"), "Failed after 83.4s: task failed"},
		{failedSummary(elapsed, "  "), "Failed after 83.4s: unknown error"},
		{timeoutSummary(15*time.Minute, 15*time.Minute), "Failed after 900.0s: timed out (limit 15m0s)"},
		{configSummary(errors.New("asteroid: missing ASTEROID_API_KEY")), "Configuration error: asteroid: missing ASTEROID_API_KEY"},
		{launchSummary(errors.New("boom")), "Failed to launch: boom"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
