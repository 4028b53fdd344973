package repository

import "errors"

// Sentinel kinds for queue store errors.
var (
	ErrNotFound       = errors.New("queue row not found")
	ErrInvalidLimit   = errors.New("invalid limit")
	ErrCorruptPayload = errors.New("corrupt queue payload")
)
