// Package storage persists captured evidence and enforces local retention.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Backend stores a captured file and returns the locator recorded as the
// metric's source reference.
type Backend interface {
	Save(ctx context.Context, path string) (string, error)
}

// Local keeps evidence on disk; the locator is the absolute path.
type Local struct{}

// NewLocal creates the local backend.
func NewLocal() Local { return Local{} }

// Save implements Backend.
func (Local) Save(_ context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}
	return abs, nil
}

// Prune keeps the newest keep images (*.png) in dir by modification time
// and removes the rest. It returns the number of files removed. A
// non-positive keep disables pruning.
func Prune(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	type file struct {
		path  string
		mtime int64
	}
	files := make([]file, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(dir, e.Name()), mtime: info.ModTime().UnixNano()})
	}
	if len(files) <= keep {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mtime != files[j].mtime {
			return files[i].mtime > files[j].mtime
		}
		return files[i].path > files[j].path
	})

	removed := 0
	var firstErr error
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", f.path, err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
