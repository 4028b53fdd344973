package delivery

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrRejected  = errors.New("collector rejected request")
	ErrNoSession = errors.New("no session id in collector response")
)

// StatusError carries a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets callers match ErrRejected.
func (e *StatusError) Unwrap() error { return ErrRejected }
