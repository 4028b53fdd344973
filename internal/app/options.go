package service

import (
	"time"

	"github.com/okian/worksight/internal/adapters/mq/worker"
	"github.com/okian/worksight/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLoopIntervals overrides the heartbeat, capture and health intervals
// taken from the configuration. Zero keeps the configured value.
func WithLoopIntervals(heartbeat, capture, health time.Duration) Option {
	return func(s *Service) {
		if heartbeat > 0 {
			s.heartbeatInterval = heartbeat
		}
		if capture > 0 {
			s.captureInterval = capture
		}
		if health > 0 {
			s.healthInterval = health
		}
	}
}

// WithWorkerOptions appends options to both queue workers.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(s *Service) {
		s.workerOpts = append(s.workerOpts, opts...)
	}
}
