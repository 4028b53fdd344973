// Package config defines agent configuration structures and loading hooks.
//
// Conventions:
// - Durations are integer fields with a unit suffix (_s, _ms); use the
//   accessor methods to get time.Duration values.
// - New returns a Config populated with defaults; Load layers file and env on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Storage backend names accepted by StorageBackend.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`
	// LogFile, when set, receives log output instead of stdout.
	LogFile string `koanf:"log_file"`

	// DataDir holds the queue database, the baseline file and the identity file.
	DataDir string `koanf:"data_dir"`
	// EndpointID overrides the persisted endpoint identity.
	EndpointID string `koanf:"endpoint_id"`

	// CollectorURL is the base URL of the remote collector.
	CollectorURL     string `koanf:"collector_url"`
	RequestTimeoutMS int    `koanf:"request_timeout_ms"`

	// StatusAddr configures the local status server; empty disables it.
	StatusAddr string `koanf:"status_addr"`

	// Capture settings.
	CaptureIntervalS int    `koanf:"capture_interval_s"`
	CaptureCommand   string `koanf:"capture_command"`
	CaptureDir       string `koanf:"capture_dir"`
	MaxScreenshots   int    `koanf:"max_screenshots"`

	// Evidence storage backend: local or gcs.
	StorageBackend     string `koanf:"storage_backend"`
	GCSBucket          string `koanf:"gcs_bucket"`
	GCSPrefix          string `koanf:"gcs_prefix"`
	GCSCredentialsFile string `koanf:"gcs_credentials_file"`

	// OCRCommand names the tesseract binary.
	OCRCommand string `koanf:"ocr_command"`

	// Hand-off queue between capture and inference.
	HandoffQueueSize        int `koanf:"handoff_queue_size"`
	HandoffEnqueueTimeoutMS int `koanf:"handoff_enqueue_timeout_ms"`
	InferencePollMS         int `koanf:"inference_poll_ms"`

	// Pipeline and model settings.
	PipelineTimeoutMS  int    `koanf:"pipeline_timeout_ms"`
	FeatureVersion     string `koanf:"feature_version"`
	ModelName          string `koanf:"model_name"`
	ModelVersion       string `koanf:"model_version"`
	MinBaselineSamples int    `koanf:"min_baseline_samples"`

	// Durable queue and idempotency.
	MaxQueueBacklog    int `koanf:"max_queue_backlog"`
	IdempotencyBucketS int `koanf:"idempotency_bucket_s"`
	DedupeSize         int `koanf:"dedupe_size"`

	// Upload loop.
	UploadIntervalMS int     `koanf:"upload_interval_ms"`
	UploadBatchSize  int     `koanf:"upload_batch_size"`
	MaxRetries       int     `koanf:"max_retries"`
	RetryBaseMS      int     `koanf:"retry_base_ms"`
	UploadRatePerS   float64 `koanf:"upload_rate_per_s"`

	// Heartbeat, health and shutdown.
	HeartbeatIntervalS int `koanf:"heartbeat_interval_s"`
	HealthIntervalS    int `koanf:"health_interval_s"`
	ShutdownTimeoutS   int `koanf:"shutdown_timeout_s"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "json",
		DataDir:                 "data",
		CollectorURL:            "http://127.0.0.1:8000",
		RequestTimeoutMS:        10_000,
		CaptureIntervalS:        60,
		CaptureCommand:          "",
		CaptureDir:              "",
		MaxScreenshots:          200,
		StorageBackend:          StorageLocal,
		OCRCommand:              "tesseract",
		HandoffQueueSize:        200,
		HandoffEnqueueTimeoutMS: 500,
		InferencePollMS:         1000,
		PipelineTimeoutMS:       15_000,
		FeatureVersion:          "v1",
		ModelName:               "worksight-hybrid",
		ModelVersion:            "1.0.0",
		MinBaselineSamples:      10,
		MaxQueueBacklog:         10_000,
		IdempotencyBucketS:      60,
		DedupeSize:              1024,
		UploadIntervalMS:        2000,
		UploadBatchSize:         20,
		MaxRetries:              8,
		RetryBaseMS:             2000,
		UploadRatePerS:          5,
		HeartbeatIntervalS:      30,
		HealthIntervalS:         300,
		ShutdownTimeoutS:        10,
	}
}

// Validate checks the values the runtime cannot operate without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.CollectorURL) == "" {
		return fmt.Errorf("%w: collector_url must not be empty", ErrInvalidConfig)
	}
	if c.HandoffQueueSize <= 0 {
		return fmt.Errorf("%w: handoff_queue_size must be positive", ErrInvalidConfig)
	}
	if c.MinBaselineSamples < 2 {
		return fmt.Errorf("%w: min_baseline_samples must be at least 2", ErrInvalidConfig)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalidConfig)
	}
	if c.IdempotencyBucketS <= 0 {
		return fmt.Errorf("%w: idempotency_bucket_s must be positive", ErrInvalidConfig)
	}
	if c.UploadBatchSize <= 0 {
		return fmt.Errorf("%w: upload_batch_size must be positive", ErrInvalidConfig)
	}
	for name, v := range map[string]int{
		"capture_interval_s":   c.CaptureIntervalS,
		"heartbeat_interval_s": c.HeartbeatIntervalS,
		"health_interval_s":    c.HealthIntervalS,
		"upload_interval_ms":   c.UploadIntervalMS,
		"inference_poll_ms":    c.InferencePollMS,
		"pipeline_timeout_ms":  c.PipelineTimeoutMS,
		"retry_base_ms":        c.RetryBaseMS,
		"shutdown_timeout_s":   c.ShutdownTimeoutS,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	switch c.StorageBackend {
	case StorageLocal:
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("%w: gcs_bucket is required for the gcs backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}
	return nil
}

// QueuePath is the SQLite file backing the durable queue.
func (c *Config) QueuePath() string { return filepath.Join(c.DataDir, "queue.db") }

// ScreenshotDir is where captures are written before inference.
func (c *Config) ScreenshotDir() string {
	if c.CaptureDir != "" {
		return c.CaptureDir
	}
	return filepath.Join(c.DataDir, "screenshots")
}

// Duration accessors.

func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }
func (c *Config) CaptureInterval() time.Duration { return sec(c.CaptureIntervalS) }
func (c *Config) HandoffEnqueueTimeout() time.Duration {
	return ms(c.HandoffEnqueueTimeoutMS)
}
func (c *Config) InferencePoll() time.Duration { return ms(c.InferencePollMS) }
func (c *Config) PipelineTimeout() time.Duration { return ms(c.PipelineTimeoutMS) }
func (c *Config) IdempotencyBucket() time.Duration { return sec(c.IdempotencyBucketS) }
func (c *Config) UploadInterval() time.Duration { return ms(c.UploadIntervalMS) }
func (c *Config) RetryBase() time.Duration { return ms(c.RetryBaseMS) }
func (c *Config) HeartbeatInterval() time.Duration { return sec(c.HeartbeatIntervalS) }
func (c *Config) HealthInterval() time.Duration { return sec(c.HealthIntervalS) }
func (c *Config) ShutdownTimeout() time.Duration { return sec(c.ShutdownTimeoutS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
func sec(v int) time.Duration { return time.Duration(v) * time.Second }
