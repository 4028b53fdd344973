package storage

import "errors"

// Sentinel error kinds for this package.
var (
	ErrSave   = errors.New("evidence save failed")
	ErrConfig = errors.New("invalid storage configuration")
)
