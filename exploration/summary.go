package exploration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var completeMarker = regexp.MustCompile(`EXPLORATION_COMPLETE:\s*(\d+)\s*files`)

// ParseFilesGenerated extracts n from an "EXPLORATION_COMPLETE: n files"
// marker in agent output. It returns 0 when there is no marker.
func ParseFilesGenerated(output string) int {
	m := completeMarker.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64)
}

func completedSummary(domain string, elapsed time.Duration, files int) string {
	return fmt.Sprintf("Explored %s in %ss, submitted %d files", domain, seconds(elapsed), files)
}

func failedSummary(elapsed time.Duration, msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("Failed after %ss: %s", seconds(elapsed), msg)
}

func timeoutSummary(elapsed, limit time.Duration) string {
	return failedSummary(elapsed, fmt.Sprintf("%v (limit %v)", ErrTimedOut, limit))
}

func configSummary(err error) string {
	return "Configuration error: " + err.Error()
}

func launchSummary(err error) string {
	return "Failed to launch: " + err.Error()
}
