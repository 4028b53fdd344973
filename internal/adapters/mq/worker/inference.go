package worker

import (
	"context"
	"errors"
	"time"

	"github.com/okian/worksight/internal/adapters/mq/queue"
	"github.com/okian/worksight/internal/domain/dedupe"
	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/internal/pipeline"
	"github.com/okian/worksight/pkg/logger"
	"github.com/okian/worksight/pkg/metrics"
)

// Outcome is what happened to one capture in the inference loop.
type Outcome string

// Inference outcomes.
const (
	OutcomeEnqueued  Outcome = "enqueued"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeBacklog   Outcome = "backlog"
	OutcomeFailed    Outcome = "failed"
)

// Source is the hand-off queue the inference loop drains.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (queue.Item, error)
}

// Sink is the part of the durable queue the inference loop writes to.
type Sink interface {
	Enqueue(ctx context.Context, m model.AIMetric, key string) (bool, error)
	BacklogCount(ctx context.Context) (int, error)
}

// InferenceWorker turns captures into metrics and stores them durably.
type InferenceWorker struct {
	lifecycle
	source    Source
	processor pipeline.Processor
	sink      Sink
	deduper   dedupe.Deduper
	cfg       settings
}

// NewInferenceWorker creates the inference loop.
func NewInferenceWorker(src Source, p pipeline.Processor, sink Sink, d dedupe.Deduper, opts ...Option) *InferenceWorker {
	cfg := newSettings("inference", opts)
	if d == nil {
		d = dedupe.NewInMemoryDeduper()
	}
	return &InferenceWorker{
		lifecycle: newLifecycle("inference", cfg.logger),
		source:    src,
		processor: p,
		sink:      sink,
		deduper:   d,
		cfg:       cfg,
	}
}

// Run implements Worker.
func (w *InferenceWorker) Run(ctx context.Context) error {
	defer close(w.done)
	if w.source == nil || w.processor == nil || w.sink == nil {
		return ErrNotConfigured
	}

	for !w.stopping(ctx) {
		w.cfg.beat()
		it, err := w.source.Dequeue(ctx, w.cfg.poll)
		switch {
		case err == nil:
			w.HandleOne(ctx, it)
		case errors.Is(err, queue.ErrEmpty):
		case errors.Is(err, queue.ErrClosed):
			w.logger.Info(ctx, "hand-off queue closed")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			w.logger.Warn(ctx, "dequeue failed", logger.Error(err))
		}
	}
	return nil
}

// HandleOne runs admission control, deduplication, the pipeline and the
// durable enqueue for a single capture.
func (w *InferenceWorker) HandleOne(ctx context.Context, c model.Capture) Outcome {
	backlog, err := w.sink.BacklogCount(ctx)
	counted := err == nil
	if !counted {
		metrics.RecordErrorByComponent("inference", "backlog_count")
		w.logger.Warn(ctx, "backlog count failed, admitting capture", logger.Error(err))
	} else if backlog >= w.cfg.maxBacklog {
		metrics.RecordInferenceDrop(string(OutcomeBacklog))
		w.logger.Warn(ctx, "durable backlog full, dropping capture",
			logger.Int("backlog", backlog),
			logger.Int("max_backlog", w.cfg.maxBacklog),
			logger.String("source_ref", c.SourceRef()),
		)
		return OutcomeBacklog
	}

	key := dedupe.Key(w.cfg.endpointID, c.SourceRef(), w.cfg.featureVersion, c.CapturedAt, w.cfg.bucket)
	if w.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordInferenceDrop(string(OutcomeDuplicate))
		w.logger.Debug(ctx, "capture already processed", logger.String("key", key))
		return OutcomeDuplicate
	}

	m := w.processor.Process(ctx, c)

	inserted, err := w.sink.Enqueue(ctx, m, key)
	if err != nil {
		w.deduper.Unrecord(ctx, key)
		metrics.RecordErrorByComponent("inference", "enqueue")
		w.logger.Error(ctx, "durable enqueue failed",
			logger.String("key", key),
			logger.Error(err),
		)
		return OutcomeFailed
	}
	if !inserted {
		w.logger.Debug(ctx, "metric already queued", logger.String("key", key))
		return OutcomeDuplicate
	}
	if counted {
		metrics.UpdateBacklog(backlog + 1)
	}
	w.logger.Debug(ctx, "metric queued",
		logger.String("key", key),
		logger.String("status", string(m.PipelineStatus)),
		logger.String("label", string(m.AnomalyLabel)),
	)
	return OutcomeEnqueued
}
