package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/pkg/metrics"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens an in-memory database (used by tests and dry runs).
const MemoryPath = ":memory:"

const defaultBusyTimeout = 5 * time.Second

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db          *sql.DB
	now         func() time.Time
	busyTimeout time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the queue database at path and runs pending
// migrations. Pass MemoryPath for an in-memory database.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{now: time.Now, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection serializes every operation and keeps :memory: alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s.db = db
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that have not been recorded yet.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		if err := s.applyMigration(version, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) applyMigration(version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(content); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *SQLiteStore) AppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Enqueue inserts m under key; a duplicate key returns false without error.
func (s *SQLiteStore) Enqueue(ctx context.Context, m model.AIMetric, key string) (bool, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		metrics.RecordDurableEnqueue("error")
		return false, fmt.Errorf("encoding metric: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_queue (idempotency_key, payload, attempt, queued_at, next_retry_at)
		VALUES (?, ?, 0, ?, 0)
		ON CONFLICT(idempotency_key) DO NOTHING`,
		key, string(payload), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		metrics.RecordDurableEnqueue("error")
		return false, fmt.Errorf("inserting queue row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		metrics.RecordDurableEnqueue("error")
		return false, fmt.Errorf("inserting queue row: %w", err)
	}
	if n == 0 {
		metrics.RecordDurableEnqueue("duplicate")
		return false, nil
	}
	metrics.RecordDurableEnqueue("inserted")
	return true, nil
}

const rowColumns = `id, idempotency_key, payload, attempt, queued_at, next_retry_at, dead_letter, last_error`

// ReadyItems returns eligible rows in id order.
func (s *SQLiteStore) ReadyItems(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.queryRows(ctx, `SELECT `+rowColumns+` FROM ai_queue
		WHERE dead_letter = 0 AND next_retry_at <= ?
		ORDER BY id ASC
		LIMIT ?`, toEpoch(s.now()), limit)
}

// DeadLetters lists dead-lettered rows in id order.
func (s *SQLiteStore) DeadLetters(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.queryRows(ctx, `SELECT `+rowColumns+` FROM ai_queue
		WHERE dead_letter = 1
		ORDER BY id ASC
		LIMIT ?`, limit)
}

func (s *SQLiteStore) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var (
			r         Row
			payload   string
			queuedAt  string
			nextRetry float64
			dead      int
			lastErr   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.IdempotencyKey, &payload, &r.Attempt, &queuedAt, &nextRetry, &dead, &lastErr); err != nil {
			return nil, fmt.Errorf("scanning queue row: %w", err)
		}
		r.Payload = []byte(payload)
		r.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, queuedAt)
		r.NextRetryAt = fromEpoch(nextRetry)
		r.DeadLetter = dead != 0
		r.LastError = lastErr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkSuccess deletes a delivered row.
func (s *SQLiteStore) MarkSuccess(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM ai_queue WHERE id = ?`, id)
}

// Reschedule stores the attempt count, next retry time and truncated error.
func (s *SQLiteStore) Reschedule(ctx context.Context, id int64, attempt int, nextRetryAt time.Time, errText string) error {
	return s.execOne(ctx, `UPDATE ai_queue SET attempt = ?, next_retry_at = ?, last_error = ? WHERE id = ?`,
		attempt, toEpoch(nextRetryAt), truncate(errText, MaxErrorLen), id)
}

// MarkDeadLetter flags a row as terminally failed.
func (s *SQLiteStore) MarkDeadLetter(ctx context.Context, id int64, errText string) error {
	return s.execOne(ctx, `UPDATE ai_queue SET dead_letter = 1, last_error = ? WHERE id = ?`,
		truncate(errText, MaxErrorLen), id)
}

func (s *SQLiteStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating queue: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BacklogCount counts rows that are not dead-lettered.
func (s *SQLiteStore) BacklogCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_queue WHERE dead_letter = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting backlog: %w", err)
	}
	return n, nil
}

// RequeueDeadLetters resets every dead letter to attempt 0, eligible now.
func (s *SQLiteStore) RequeueDeadLetters(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ai_queue SET dead_letter = 0, attempt = 0, next_retry_at = 0 WHERE dead_letter = 1`)
	if err != nil {
		return 0, fmt.Errorf("requeueing dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeueing dead letters: %w", err)
	}
	return int(n), nil
}

// Stats counts pending, ready and dead-lettered rows.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN dead_letter = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN dead_letter = 0 AND next_retry_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN dead_letter = 1 THEN 1 ELSE 0 END), 0)
		FROM ai_queue`, toEpoch(s.now())).Scan(&st.Pending, &st.Ready, &st.DeadLetters)
	if err != nil {
		return Stats{}, fmt.Errorf("reading queue stats: %w", err)
	}
	return st, nil
}

// toEpoch converts t to fractional unix seconds; the zero time maps to 0.
func toEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// truncate keeps at most n characters of s without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
