package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/okian/worksight/internal/adapters/capture"
	"github.com/okian/worksight/internal/adapters/delivery"
	"github.com/okian/worksight/internal/adapters/http/api"
	"github.com/okian/worksight/internal/adapters/identity"
	"github.com/okian/worksight/internal/adapters/ocr"
	"github.com/okian/worksight/internal/adapters/repository"
	"github.com/okian/worksight/internal/adapters/storage"
	service "github.com/okian/worksight/internal/app"
	"github.com/okian/worksight/internal/config"
	"github.com/okian/worksight/internal/domain/anomaly"
	"github.com/okian/worksight/internal/domain/baseline"
	"github.com/okian/worksight/internal/pipeline"
	"github.com/okian/worksight/pkg/logger"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx)
		},
	}
}

// loadConfig loads configuration and initializes the global logger from it.
func loadConfig(ctx context.Context) (*config.Config, func(), error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	closeLog := func() {}
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		opts = append(opts, logger.WithOutput(f))
		closeLog = func() { _ = f.Close() }
	}
	if err := logger.Init(opts...); err != nil {
		closeLog()
		return nil, nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, closeLog, nil
}

func runAgent(ctx context.Context) error {
	cfg, closeLog, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer closeLog()
	log := logger.Named("main")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	id, err := identity.Load(cfg.DataDir, cfg.EndpointID)
	if err != nil {
		return err
	}

	store, err := repository.Open(cfg.QueuePath())
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer store.Close() //nolint:errcheck // closed on exit

	bl := baseline.Open(baseline.PathFor(cfg.DataDir, id.EndpointID()))
	detector := anomaly.New(bl, anomaly.WithMinBaselineSamples(cfg.MinBaselineSamples))

	tess := ocr.NewTesseract(cfg.OCRCommand)
	if !tess.Available() {
		log.Warn(ctx, "ocr engine not found; metrics will be partial", logger.String("command", cfg.OCRCommand))
	}
	orch := pipeline.New(tess, detector, bl,
		pipeline.WithTimeout(cfg.PipelineTimeout()),
		pipeline.WithFeatureVersion(cfg.FeatureVersion),
		pipeline.WithModel(cfg.ModelName, cfg.ModelVersion),
	)

	backend, err := newBackend(ctx, cfg, id.EndpointID())
	if err != nil {
		return err
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer closer.Close() //nolint:errcheck // closed on exit
	}

	captureOpts := []capture.Option{}
	if cfg.CaptureCommand != "" {
		captureOpts = append(captureOpts, capture.WithCommand(cfg.CaptureCommand))
	}
	client := delivery.New(cfg.CollectorURL, id.EndpointID(),
		delivery.WithTimeout(cfg.RequestTimeout()),
		delivery.WithAgentVersion(version),
	)

	svc, err := service.New(cfg, service.Dependencies{
		EndpointID: id.EndpointID(),
		Capturer:   capture.NewCommand(cfg.ScreenshotDir(), captureOpts...),
		Storage:    backend,
		Processor:  orch,
		Store:      store,
		Collector:  client,
	})
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = startStatusServer(ctx, cfg.StatusAddr, svc)
	}

	runErr := svc.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "status server shutdown failed", logger.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	log.Info(context.Background(), "agent stopped")
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config, endpointID string) (storage.Backend, error) {
	if cfg.StorageBackend != config.StorageGCS {
		return storage.NewLocal(), nil
	}
	g, err := storage.NewGCS(ctx, cfg.GCSBucket, path.Join(cfg.GCSPrefix, endpointID), cfg.GCSCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("opening GCS backend: %w", err)
	}
	return g, nil
}

func startStatusServer(ctx context.Context, addr string, svc *service.Service) *http.Server {
	log := logger.Named("status")
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewServer(api.StatsFunc(func(ctx context.Context) any {
			return svc.GetStats(ctx)
		})).Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Info(ctx, "starting status server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "status server failed", logger.Error(err))
		}
	}()
	return srv
}
