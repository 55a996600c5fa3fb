package connectivity

import (
	"fmt"
	"time"
)

// ErrServiceNotFound is returned when Call targets a service with no route
// and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}

// ErrRemoteStatus is returned by the HTTP transport for non-2xx responses.
type ErrRemoteStatus struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *ErrRemoteStatus) Error() string {
	return fmt.Sprintf("connectivity/http: %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// ErrPanic wraps a recovered panic value.
type ErrPanic struct {
	Service string
	Value   any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: %s handler panicked: %v", e.Service, e.Value)
}

// ErrTimeout is returned when a call outlives the Timeout middleware.
type ErrTimeout struct {
	Service string
	After   time.Duration
	Err     error
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("connectivity: %s timed out after %v: %v", e.Service, e.After, e.Err)
}

func (e *ErrTimeout) Unwrap() error { return e.Err }
