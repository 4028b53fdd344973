package anomaly

import "github.com/okian/worksight/pkg/logger"

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithMinBaselineSamples sets how many samples a tracked feature needs before
// statistical scoring takes over.
func WithMinBaselineSamples(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.minSamples = int64(n)
		}
	}
}

// WithMaturityHook registers a callback invoked once when the model matures.
func WithMaturityHook(fn func(feature string, count int64)) Option {
	return func(m *Model) {
		m.onMature = fn
	}
}

// WithLogger sets a custom logger for the model.
func WithLogger(l logger.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}
