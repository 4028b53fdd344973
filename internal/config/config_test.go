package config_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/worksight/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.HandoffQueueSize, convey.ShouldEqual, 200)
			convey.So(cfg.MinBaselineSamples, convey.ShouldEqual, 10)
			convey.So(cfg.IdempotencyBucketS, convey.ShouldEqual, 60)
			convey.So(cfg.StorageBackend, convey.ShouldEqual, config.StorageLocal)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then duration accessors should apply units", func() {
			convey.So(cfg.IdempotencyBucket(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.UploadInterval(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.HandoffEnqueueTimeout(), convey.ShouldEqual, 500*time.Millisecond)
		})

		convey.Convey("Then derived paths should live under the data dir", func() {
			convey.So(cfg.QueuePath(), convey.ShouldEqual, filepath.Join("data", "queue.db"))
			convey.So(cfg.ScreenshotDir(), convey.ShouldEqual, filepath.Join("data", "screenshots"))
			cfg.CaptureDir = "/tmp/shots"
			convey.So(cfg.ScreenshotDir(), convey.ShouldEqual, "/tmp/shots")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a config with invalid values", t, func() {
		cases := map[string]func(c *config.Config){
			"empty data dir":          func(c *config.Config) { c.DataDir = " " },
			"empty collector":         func(c *config.Config) { c.CollectorURL = "" },
			"zero hand-off queue":     func(c *config.Config) { c.HandoffQueueSize = 0 },
			"tiny baseline":           func(c *config.Config) { c.MinBaselineSamples = 1 },
			"no retries":              func(c *config.Config) { c.MaxRetries = 0 },
			"zero bucket":             func(c *config.Config) { c.IdempotencyBucketS = 0 },
			"zero upload interval":    func(c *config.Config) { c.UploadIntervalMS = 0 },
			"unknown backend":         func(c *config.Config) { c.StorageBackend = "s3" },
			"gcs without bucket":      func(c *config.Config) { c.StorageBackend = config.StorageGCS },
			"zero heartbeat interval": func(c *config.Config) { c.HeartbeatIntervalS = 0 },
			"zero shutdown timeout":   func(c *config.Config) { c.ShutdownTimeoutS = 0 },
			"negative retry base":     func(c *config.Config) { c.RetryBaseMS = -1 },
			"zero pipeline timeout":   func(c *config.Config) { c.PipelineTimeoutMS = 0 },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
