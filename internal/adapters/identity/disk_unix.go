//go:build linux || darwin

package identity

import (
	"fmt"
	"syscall"
)

// Disk reports usage of the filesystem containing path.
func Disk(path string) (DiskUsage, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize) //nolint:gosec // block size is never negative
	return newDiskUsage(st.Blocks*bsize, st.Bavail*bsize), nil
}
