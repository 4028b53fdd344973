package worker

import "errors"

// ErrNotConfigured is returned by Run when a required collaborator is nil.
var ErrNotConfigured = errors.New("worker not configured")
