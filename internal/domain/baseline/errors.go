package baseline

import "errors"

// Sentinel error kinds for this package.
var (
	ErrPersist = errors.New("persist baseline failed")
)
