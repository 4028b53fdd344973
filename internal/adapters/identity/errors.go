package identity

import "errors"

// Sentinel error kinds for this package.
var (
	ErrIdentity        = errors.New("endpoint identity unavailable")
	ErrInvalidID       = errors.New("endpoint id must not contain path separators")
	ErrDiskUnsupported = errors.New("disk usage not supported on this platform")
)
