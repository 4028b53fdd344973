package worker

import (
	"time"

	"github.com/okian/worksight/pkg/logger"
)

// settings holds tunables shared by the inference and upload workers.
type settings struct {
	logger         logger.Logger
	beat           func()
	now            func() time.Time
	poll           time.Duration
	endpointID     string
	featureVersion string
	bucket         time.Duration
	maxBacklog     int
	interval       time.Duration
	batchSize      int
	maxRetries     int
	retryBase      time.Duration
	ratePerSecond  float64
}

// Option applies a configuration option to a worker.
type Option func(*settings)

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBeat registers a liveness callback invoked once per loop iteration.
func WithBeat(beat func()) Option {
	return func(s *settings) {
		if beat != nil {
			s.beat = beat
		}
	}
}

// WithClock overrides the time source used to schedule retries.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPollInterval bounds how long the inference loop waits on an empty queue.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithEndpointID sets the endpoint identity folded into idempotency keys.
func WithEndpointID(id string) Option {
	return func(s *settings) { s.endpointID = id }
}

// WithFeatureVersion sets the feature schema version folded into keys.
func WithFeatureVersion(v string) Option {
	return func(s *settings) {
		if v != "" {
			s.featureVersion = v
		}
	}
}

// WithBucket sets the capture-time bucket used for idempotency keys.
func WithBucket(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.bucket = d
		}
	}
}

// WithMaxBacklog sets the durable backlog ceiling for admission control.
func WithMaxBacklog(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxBacklog = n
		}
	}
}

// WithUploadInterval sets how often the upload loop polls for ready rows.
func WithUploadInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize caps the rows fetched per upload poll.
func WithBatchSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRetryPolicy sets the failure budget and backoff base of a row.
func WithRetryPolicy(maxRetries int, base time.Duration) Option {
	return func(s *settings) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithRateLimit paces deliveries to perSecond requests; zero disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(s *settings) {
		if perSecond >= 0 {
			s.ratePerSecond = perSecond
		}
	}
}

func newSettings(name string, opts []Option) settings {
	s := settings{
		logger:         logger.Named(name),
		beat:           func() {},
		now:            time.Now,
		poll:           defaultPollInterval,
		featureVersion: "v1",
		bucket:         time.Minute,
		maxBacklog:     defaultMaxBacklog,
		interval:       defaultUploadInterval,
		batchSize:      defaultBatchSize,
		maxRetries:     defaultMaxRetries,
		retryBase:      defaultRetryBase,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
