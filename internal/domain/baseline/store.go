// Package baseline keeps running per-feature statistics for one endpoint and
// persists them as an indented JSON file.
package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/pkg/logger"
)

// Entry holds Welford running statistics for one feature.
type Entry struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

// Stats is the derived view of an Entry with at least two samples.
type Stats struct {
	Mean  float64
	Std   float64
	Count int64
}

// Store is a concurrency-safe Welford baseline backed by a JSON file.
// An empty path keeps the baseline in memory only.
type Store struct {
	path   string
	logger logger.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	version uint64

	// writeMu serializes file replacement; written is the newest version on disk.
	writeMu sync.Mutex
	written uint64
}

// PathFor returns the baseline file for an endpoint under dir. Path
// separators in the id are replaced so the file always lands in dir.
func PathFor(dir, endpointID string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '_'
		}
		return r
	}, endpointID)
	return filepath.Join(dir, fmt.Sprintf("baseline-%s.json", name))
}

// Open loads the baseline at path. A missing or unreadable file yields an
// empty baseline; the condition is logged, not returned.
func Open(path string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		logger:  logger.Get().Named("baseline"),
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if path != "" {
		s.load()
	}
	return s
}

func (s *Store) load() {
	ctx := context.Background()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info(ctx, "no baseline on disk, starting empty", logger.String("path", s.path))
		return
	}
	if err != nil {
		s.logger.Warn(ctx, "baseline unreadable, starting empty", logger.String("path", s.path), logger.Error(err))
		return
	}

	var raw map[string]*Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn(ctx, "baseline corrupt, starting empty", logger.String("path", s.path), logger.Error(err))
		return
	}
	for name, e := range raw {
		if e == nil || e.Count < 0 || e.M2 < 0 || math.IsNaN(e.Mean) {
			s.logger.Warn(ctx, "dropping invalid baseline entry", logger.String("feature", name))
			continue
		}
		s.entries[name] = e
	}
	s.logger.Info(ctx, "baseline loaded", logger.String("path", s.path), logger.Int("features", len(s.entries)))
}

// Update folds every value of fv into its running statistics and then
// persists the whole mapping atomically.
func (s *Store) Update(fv model.FeatureVector) error {
	s.mu.Lock()
	for name, x := range fv {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		e, ok := s.entries[name]
		if !ok {
			e = &Entry{}
			s.entries[name] = e
		}
		e.Count++
		delta := x - e.Mean
		e.Mean += delta / float64(e.Count)
		delta2 := x - e.Mean
		e.M2 += delta * delta2
	}
	s.version++
	version := s.version
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrPersist, err)
	}
	if s.path == "" {
		return nil
	}
	return s.persist(version, data)
}

// persist replaces the file unless a newer snapshot has already been written.
func (s *Store) persist(version uint64, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if version <= s.written {
		return nil
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.written = version
	return nil
}

// writeAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path so readers see either the old or the new file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".baseline-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync baseline: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close baseline: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename baseline: %w", err)
	}

	success = true
	return nil
}

// Stats returns mean, sample standard deviation and count for name. ok is
// false when fewer than two samples exist.
func (s *Store) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked(name)
}

func (s *Store) statsLocked(name string) (Stats, bool) {
	e, ok := s.entries[name]
	if !ok || e.Count < 2 {
		return Stats{}, false
	}
	variance := e.M2 / float64(e.Count-1)
	std := 0.0
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return Stats{Mean: e.Mean, Std: std, Count: e.Count}, true
}

// ZScore returns |value-mean|/std, or 0 when stats are absent or std is 0.
func (s *Store) ZScore(name string, value float64) float64 {
	st, ok := s.Stats(name)
	if !ok || st.Std == 0 {
		return 0
	}
	return math.Abs(value-st.Mean) / st.Std
}

// Count returns the raw sample count for name.
func (s *Store) Count(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		return e.Count
	}
	return 0
}

// Snapshot returns a copy of every entry.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = *v
	}
	return out
}

// Features returns the tracked feature names in sorted order.
func (s *Store) Features() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for k := range s.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Path returns the backing file, empty for in-memory stores.
func (s *Store) Path() string { return s.path }
