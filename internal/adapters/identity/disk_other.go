//go:build !linux && !darwin

package identity

// Disk is not implemented on this platform.
func Disk(string) (DiskUsage, error) {
	return DiskUsage{}, ErrDiskUnsupported
}
