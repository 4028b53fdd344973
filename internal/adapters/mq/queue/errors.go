package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrEmpty  = errors.New("queue empty")
	ErrClosed = errors.New("queue closed")
)
