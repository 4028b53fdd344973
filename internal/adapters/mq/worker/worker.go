// Package worker runs the inference and upload loops that move captures
// through the pipeline into the durable queue and on to the collector.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/worksight/pkg/logger"
)

// Default worker configuration constants.
const (
	defaultPollInterval   = time.Second
	defaultUploadInterval = 2 * time.Second
	defaultBatchSize      = 20
	defaultMaxRetries     = 8
	defaultRetryBase      = 2 * time.Second
	defaultMaxBacklog     = 10_000
	maxBackoffShift       = 16
)

// MaxBackoff caps the exponential part of a retry delay.
const MaxBackoff = 24 * time.Hour

// Worker is a long-running loop owned by the runtime supervisor.
type Worker interface {
	// Run blocks until ctx is canceled or Shutdown is called. A nil return
	// means an orderly stop.
	Run(ctx context.Context) error

	// Shutdown asks Run to return and waits for it.
	Shutdown(ctx context.Context) error
}

// lifecycle carries the shutdown handshake shared by both workers.
type lifecycle struct {
	name     string
	shutdown chan struct{}
	done     chan struct{}
	logger   logger.Logger
}

func newLifecycle(name string, l logger.Logger) lifecycle {
	return lifecycle{
		name:     name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   l,
	}
}

// stopping reports whether the loop should exit.
func (lc *lifecycle) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-lc.shutdown:
		return true
	default:
		return false
	}
}

// Shutdown signals the loop and waits for it to exit or ctx to end.
func (lc *lifecycle) Shutdown(ctx context.Context) error {
	select {
	case <-lc.shutdown:
	default:
		close(lc.shutdown)
	}

	select {
	case <-lc.done:
		return nil
	case <-ctx.Done():
		lc.logger.Warn(ctx, "shutdown timed out", logger.String("worker", lc.name))
		return fmt.Errorf("%s shutdown timed out: %w", lc.name, ctx.Err())
	}
}
