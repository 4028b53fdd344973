package service

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrWorkerDied is returned by Run when a loop stopped on its own while
	// the runtime was running.
	ErrWorkerDied      = errors.New("worker died")
	ErrNotConfigured   = errors.New("runtime dependency missing")
	ErrAlreadyStarted  = errors.New("runtime already started")
	ErrShutdownTimeout = errors.New("shutdown timed out")
)
