package capture

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnavailable = errors.New("capture command unavailable")
	ErrCapture     = errors.New("capture failed")
)
