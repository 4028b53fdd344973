// Package repository persists produced metrics until the collector accepts them.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/worksight/internal/domain/model"
)

// MaxErrorLen bounds the stored last_error text, in characters.
const MaxErrorLen = 500

// Row is one durable queue record.
type Row struct {
	ID             int64
	IdempotencyKey string
	Payload        []byte
	Attempt        int
	EnqueuedAt     time.Time
	NextRetryAt    time.Time // zero means eligible now
	DeadLetter     bool
	LastError      string
}

// Metric decodes the stored payload.
func (r Row) Metric() (model.AIMetric, error) {
	var m model.AIMetric
	if err := json.Unmarshal(r.Payload, &m); err != nil {
		return model.AIMetric{}, fmt.Errorf("%w: row %d: %w", ErrCorruptPayload, r.ID, err)
	}
	return m, nil
}

// Stats summarizes queue contents for operators.
type Stats struct {
	Pending     int `json:"pending"`
	Ready       int `json:"ready"`
	DeadLetters int `json:"dead_letters"`
}

// Store provides durable, idempotent access to queued metrics.
type Store interface {
	// Enqueue inserts the metric under key. A duplicate key is not an error:
	// it returns false and leaves the existing row untouched.
	Enqueue(ctx context.Context, m model.AIMetric, key string) (bool, error)

	// ReadyItems returns up to limit non-dead-lettered rows whose retry time
	// has passed, oldest first.
	ReadyItems(ctx context.Context, limit int) ([]Row, error)

	// MarkSuccess deletes a delivered row.
	MarkSuccess(ctx context.Context, id int64) error

	// Reschedule records a failed attempt and the next eligible time.
	Reschedule(ctx context.Context, id int64, attempt int, nextRetryAt time.Time, errText string) error

	// MarkDeadLetter excludes a row from delivery permanently.
	MarkDeadLetter(ctx context.Context, id int64, errText string) error

	// BacklogCount counts rows that are not dead-lettered.
	BacklogCount(ctx context.Context) (int, error)

	// DeadLetters lists dead-lettered rows, oldest first.
	DeadLetters(ctx context.Context, limit int) ([]Row, error)

	// RequeueDeadLetters makes every dead-lettered row eligible again with a
	// fresh attempt budget. Returns the number of rows requeued.
	RequeueDeadLetters(ctx context.Context) (int, error)

	Stats(ctx context.Context) (Stats, error)

	Close() error
}
