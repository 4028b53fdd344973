package pipeline

import (
	"time"

	"github.com/okian/worksight/internal/domain/scoring"
	"github.com/okian/worksight/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithTimeout sets the elapsed-time budget after which a metric is marked partial.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithFeatureVersion sets the feature schema version stamped on metrics.
func WithFeatureVersion(v string) Option {
	return func(o *Orchestrator) {
		if v != "" {
			o.featureVersion = v
		}
	}
}

// WithModel sets the model identity stamped on metrics.
func WithModel(name, version string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.modelName = name
		}
		if version != "" {
			o.modelVersion = version
		}
	}
}

// WithPredictor replaces the productivity model.
func WithPredictor(p scoring.Predictor) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.predictor = p
		}
	}
}

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
