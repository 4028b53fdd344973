package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/worksight/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.HandoffQueueSize, convey.ShouldEqual, 200)
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 8)
				convey.So(cfg.FeatureVersion, convey.ShouldEqual, "v1")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("WORKSIGHT_ENDPOINT_ID", "laptop-42")
			_ = os.Setenv("WORKSIGHT_MAX_RETRIES", "3")
			_ = os.Setenv("WORKSIGHT_UPLOAD_RATE_PER_S", "2.5")
			_ = os.Setenv("WORKSIGHT_MIN_BASELINE_SAMPLES", "20")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.EndpointID, convey.ShouldEqual, "laptop-42")
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 3)
				convey.So(cfg.UploadRatePerS, convey.ShouldEqual, 2.5)
				convey.So(cfg.MinBaselineSamples, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# agent settings
collector_url: "https://collector.example.com"
max_queue_backlog: 500
storage_backend: gcs
gcs_bucket: evidence
max_retries: 4
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("WORKSIGHT_CONFIG", tmpFile)
			_ = os.Setenv("WORKSIGHT_MAX_RETRIES", "6") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.CollectorURL, convey.ShouldEqual, "https://collector.example.com") // From file
				convey.So(cfg.MaxQueueBacklog, convey.ShouldEqual, 500)                          // From file
				convey.So(cfg.StorageBackend, convey.ShouldEqual, config.StorageGCS)              // From file
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 6)                                  // Overridden by env
				convey.So(cfg.HandoffQueueSize, convey.ShouldEqual, 200)                          // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("WORKSIGHT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("WORKSIGHT_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("WORKSIGHT_MAX_RETRIES", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config that fails validation", func() {
			_ = os.Setenv("WORKSIGHT_STORAGE_BACKEND", "gcs")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "gcs_bucket")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"WORKSIGHT_CONFIG",
		"WORKSIGHT_ENDPOINT_ID",
		"WORKSIGHT_MAX_RETRIES",
		"WORKSIGHT_UPLOAD_RATE_PER_S",
		"WORKSIGHT_MIN_BASELINE_SAMPLES",
		"WORKSIGHT_STORAGE_BACKEND",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "worksight-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
