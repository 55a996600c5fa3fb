package exploration

import (
	"errors"
	"fmt"
)

// ErrTimedOut ends a run that produced no terminal result within
// Config.MaxDuration.
var ErrTimedOut = errors.New("timed out")

// ValidationError reports a Start request that cannot become an
// exploration. Nothing is written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
