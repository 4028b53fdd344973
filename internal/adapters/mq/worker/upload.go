package worker

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/okian/worksight/internal/adapters/repository"
	"github.com/okian/worksight/pkg/logger"
	"github.com/okian/worksight/pkg/metrics"
	"golang.org/x/time/rate"
)

// Delivery results recorded in metrics.
const (
	resultSuccess    = "success"
	resultRetry      = "retry"
	resultDeadLetter = "dead_letter"
)

// Sender delivers one serialized metric under its idempotency key.
type Sender interface {
	SendMetric(ctx context.Context, payload []byte, key string) error
}

// Outbox is the part of the durable queue the upload loop drives.
type Outbox interface {
	ReadyItems(ctx context.Context, limit int) ([]repository.Row, error)
	MarkSuccess(ctx context.Context, id int64) error
	Reschedule(ctx context.Context, id int64, attempt int, nextRetryAt time.Time, errText string) error
	MarkDeadLetter(ctx context.Context, id int64, errText string) error
	BacklogCount(ctx context.Context) (int, error)
}

// DrainResult summarizes one pass over ready rows.
type DrainResult struct {
	Delivered   int
	Retried     int
	DeadLetters int
}

// UploadWorker delivers ready rows sequentially. Only one should run per
// queue so no row is in flight twice.
type UploadWorker struct {
	lifecycle
	outbox  Outbox
	sender  Sender
	limiter *rate.Limiter
	cfg     settings
}

// NewUploadWorker creates the upload loop.
func NewUploadWorker(outbox Outbox, sender Sender, opts ...Option) *UploadWorker {
	cfg := newSettings("upload", opts)
	limit := rate.Inf
	if cfg.ratePerSecond > 0 {
		limit = rate.Limit(cfg.ratePerSecond)
	}
	return &UploadWorker{
		lifecycle: newLifecycle("upload", cfg.logger),
		outbox:    outbox,
		sender:    sender,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
	}
}

// Run implements Worker.
func (w *UploadWorker) Run(ctx context.Context) error {
	defer close(w.done)
	if w.outbox == nil || w.sender == nil {
		return ErrNotConfigured
	}

	ticker := time.NewTicker(w.cfg.interval)
	defer ticker.Stop()

	for {
		w.cfg.beat()
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn(ctx, "upload pass failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-w.shutdown:
			return nil
		case <-ticker.C:
		}
	}
}

// Drain delivers one batch of ready rows, oldest first.
func (w *UploadWorker) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	rows, err := w.outbox.ReadyItems(ctx, w.cfg.batchSize)
	if err != nil {
		metrics.RecordErrorByComponent("upload", "ready_items")
		return res, err
	}

	for _, row := range rows {
		if w.stopping(ctx) {
			break
		}
		if err := w.limiter.Wait(ctx); err != nil {
			break
		}
		switch w.deliver(ctx, row) {
		case resultSuccess:
			res.Delivered++
		case resultRetry:
			res.Retried++
		case resultDeadLetter:
			res.DeadLetters++
		}
	}

	if backlog, err := w.outbox.BacklogCount(ctx); err == nil {
		metrics.UpdateBacklog(backlog)
	}
	return res, nil
}

func (w *UploadWorker) deliver(ctx context.Context, row repository.Row) string {
	start := time.Now()
	err := w.sender.SendMetric(ctx, row.Payload, row.IdempotencyKey)
	latency := float64(time.Since(start).Microseconds()) / 1000

	if err == nil {
		metrics.RecordDelivery(resultSuccess, latency)
		if err := w.outbox.MarkSuccess(ctx, row.ID); err != nil {
			metrics.RecordErrorByComponent("upload", "mark_success")
			w.logger.Error(ctx, "delivered row could not be removed",
				logger.Int64("id", row.ID),
				logger.Error(err),
			)
		}
		return resultSuccess
	}

	// A canceled send is not a delivery failure; the row keeps its attempt count.
	if ctx.Err() != nil {
		return ""
	}
	return w.fail(ctx, row, err, latency)
}

// fail charges one attempt to row. The row is dead-lettered once it has
// failed maxRetries times.
func (w *UploadWorker) fail(ctx context.Context, row repository.Row, cause error, latency float64) string {
	attempt := row.Attempt + 1
	if attempt >= w.cfg.maxRetries {
		metrics.RecordDelivery(resultDeadLetter, latency)
		if err := w.outbox.MarkDeadLetter(ctx, row.ID, cause.Error()); err != nil {
			w.logger.Error(ctx, "dead-letter failed", logger.Int64("id", row.ID), logger.Error(err))
		}
		w.logger.Warn(ctx, "delivery exhausted retries",
			logger.Int64("id", row.ID),
			logger.String("key", row.IdempotencyKey),
			logger.Int("attempts", attempt),
			logger.Error(cause),
		)
		return resultDeadLetter
	}

	backoff := Backoff(w.cfg.retryBase, attempt)
	metrics.RecordDelivery(resultRetry, latency)
	if err := w.outbox.Reschedule(ctx, row.ID, attempt, w.cfg.now().Add(backoff), cause.Error()); err != nil {
		w.logger.Error(ctx, "reschedule failed", logger.Int64("id", row.ID), logger.Error(err))
	}
	w.logger.Info(ctx, "delivery failed, rescheduled",
		logger.Int64("id", row.ID),
		logger.Int("attempt", attempt),
		logger.Duration("backoff", backoff),
		logger.Error(cause),
	)
	return resultRetry
}

// Backoff returns base·2^(attempt−1) plus uniform jitter in [0, base).
// The exponential part never exceeds MaxBackoff.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	base = min(base, MaxBackoff)
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return min(base<<shift, MaxBackoff) + time.Duration(rand.Int64N(int64(base)))
}
