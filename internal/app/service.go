// Package service is the agent runtime: it owns the capture hand-off queue
// and supervises the heartbeat, capture, inference, upload and health loops.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/worksight/internal/adapters/capture"
	"github.com/okian/worksight/internal/adapters/identity"
	"github.com/okian/worksight/internal/adapters/mq/queue"
	"github.com/okian/worksight/internal/adapters/mq/worker"
	"github.com/okian/worksight/internal/adapters/repository"
	"github.com/okian/worksight/internal/adapters/storage"
	"github.com/okian/worksight/internal/config"
	"github.com/okian/worksight/internal/domain/dedupe"
	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/internal/pipeline"
	"github.com/okian/worksight/pkg/logger"
	"github.com/okian/worksight/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Loop names, also used as metric labels.
const (
	LoopHeartbeat = "heartbeat"
	LoopCapture   = "capture"
	LoopInference = "inference"
	LoopUpload    = "upload"
	LoopHealth    = "health"
)

// Collector is the remote side reached by the heartbeat, upload and health
// loops.
type Collector interface {
	worker.Sender
	SendHeartbeat(ctx context.Context) error
	SendHealth(ctx context.Context, snapshot any) error
}

// SessionOpener is implemented by collectors that track agent sessions.
type SessionOpener interface {
	CreateSession(ctx context.Context, info identity.SystemInfo) (int64, error)
}

// Dependencies are the collaborators the runtime drives.
type Dependencies struct {
	EndpointID string
	Capturer   capture.Capturer
	Storage    storage.Backend
	Processor  pipeline.Processor
	Store      repository.Store
	Collector  Collector
}

type loop struct {
	name string
	run  func(ctx context.Context) error
}

// Service is the concurrent runtime supervisor.
type Service struct {
	cfg  *config.Config
	deps Dependencies

	state   atomic.Int32
	started atomic.Bool

	handoff   *queue.InMemoryQueue
	inference *worker.InferenceWorker
	upload    *worker.UploadWorker

	heartbeatInterval time.Duration
	captureInterval   time.Duration
	healthInterval    time.Duration
	workerOpts        []worker.Option

	liveness   map[string]*liveness
	lastHealth atomic.Pointer[HealthSnapshot]
	hostname   string

	logger logger.Logger
}

type liveness struct {
	up       atomic.Bool
	lastBeat atomic.Int64
}

// New wires the runtime. It fails with ErrNotConfigured when a required
// dependency is missing.
func New(cfg *config.Config, deps Dependencies, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", ErrNotConfigured)
	}
	switch {
	case deps.Capturer == nil:
		return nil, fmt.Errorf("%w: capturer", ErrNotConfigured)
	case deps.Processor == nil:
		return nil, fmt.Errorf("%w: processor", ErrNotConfigured)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrNotConfigured)
	case deps.Collector == nil:
		return nil, fmt.Errorf("%w: collector", ErrNotConfigured)
	}
	if deps.Storage == nil {
		deps.Storage = storage.NewLocal()
	}

	s := &Service{
		cfg:               cfg,
		deps:              deps,
		heartbeatInterval: cfg.HeartbeatInterval(),
		captureInterval:   cfg.CaptureInterval(),
		healthInterval:    cfg.HealthInterval(),
		liveness:          make(map[string]*liveness),
		hostname:          identity.Hostname(),
		logger:            logger.Named("runtime"),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range []string{LoopHeartbeat, LoopCapture, LoopInference, LoopUpload, LoopHealth} {
		s.liveness[name] = &liveness{}
	}

	s.handoff = queue.NewInMemoryQueue(queue.WithCapacity(cfg.HandoffQueueSize))

	common := []worker.Option{
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithEndpointID(deps.EndpointID),
		worker.WithFeatureVersion(cfg.FeatureVersion),
		worker.WithBucket(cfg.IdempotencyBucket()),
		worker.WithPollInterval(cfg.InferencePoll()),
		worker.WithMaxBacklog(cfg.MaxQueueBacklog),
		worker.WithUploadInterval(cfg.UploadInterval()),
		worker.WithBatchSize(cfg.UploadBatchSize),
		worker.WithRetryPolicy(cfg.MaxRetries, cfg.RetryBase()),
		worker.WithRateLimit(cfg.UploadRatePerS),
	}
	common = append(common, s.workerOpts...)

	s.inference = worker.NewInferenceWorker(s.handoff, deps.Processor, deps.Store,
		dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize)),
		append(common, worker.WithBeat(s.beat(LoopInference)))...)
	s.upload = worker.NewUploadWorker(deps.Store, deps.Collector,
		append(common, worker.WithBeat(s.beat(LoopUpload)))...)

	s.setState(StateStarting)
	return s, nil
}

// State returns the current supervisor state.
func (s *Service) State() State { return State(s.state.Load()) }

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
	metrics.UpdateRuntimeState(int(st))
}

// Handoff exposes the capture to inference queue.
func (s *Service) Handoff() queue.Queue { return s.handoff }

// Run starts all loops and blocks until ctx is canceled or a loop dies.
// An orderly stop returns nil; a dead loop returns an error wrapping
// ErrWorkerDied. Either way the join waits at most ShutdownTimeout, after
// which a plain stop returns ErrShutdownTimeout. Run may be called once.
func (s *Service) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer s.setState(StateStopped)

	info := identity.Collect()
	s.logger.Info(ctx, "starting runtime",
		logger.String("endpoint_id", s.deps.EndpointID),
		logger.String("os", info.OSName),
		logger.String("arch", info.Machine),
		logger.String("hostname", info.Hostname),
		logger.String("username", info.Username),
		logger.String("ip", info.IPAddress),
	)
	if opener, ok := s.deps.Collector.(SessionOpener); ok {
		if _, err := opener.CreateSession(ctx, info); err != nil {
			s.logger.Warn(ctx, "session not created, continuing without one", logger.Error(err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loops := []loop{
		{LoopHeartbeat, s.heartbeatLoop},
		{LoopCapture, s.captureLoop},
		{LoopInference, s.inference.Run},
		{LoopUpload, s.upload.Run},
		{LoopHealth, s.healthLoop},
	}

	g, gctx := errgroup.WithContext(runCtx)
	died := make(chan error, 1)
	s.setState(StateRunning)
	for _, l := range loops {
		g.Go(func() error {
			err := s.supervise(gctx, l)
			if err != nil {
				select {
				case died <- err:
				default:
				}
			}
			return err
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	var deathErr error
	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "stop requested")
	case deathErr = <-died:
		metrics.RecordErrorByComponent("runtime", "worker_died")
		s.logger.Error(ctx, "worker died, stopping runtime", logger.Error(deathErr))
	}

	s.setState(StateStopping)
	cancel()
	_ = s.handoff.Close()

	timer := time.NewTimer(s.cfg.ShutdownTimeout())
	defer timer.Stop()
	var runErr error
	select {
	case runErr = <-errCh:
	case <-timer.C:
		s.logger.Warn(context.Background(), "workers did not stop in time",
			logger.Duration("timeout", s.cfg.ShutdownTimeout()))
		if deathErr != nil {
			return deathErr
		}
		return ErrShutdownTimeout
	}

	s.logger.Info(context.Background(), "runtime stopped", logger.Int("handoff_dropped", s.handoff.Len()))
	return runErr
}

// supervise runs one loop. Returning while the runtime is running, by
// error, panic or plain return, is reported as ErrWorkerDied.
func (s *Service) supervise(ctx context.Context, l loop) (err error) {
	live := s.liveness[l.name]
	live.up.Store(true)
	metrics.SetWorkerUp(l.name, true)
	defer func() {
		live.up.Store(false)
		metrics.SetWorkerUp(l.name, false)
	}()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent(l.name, "panic")
			err = fmt.Errorf("%w: %s panicked: %v", ErrWorkerDied, l.name, r)
		}
	}()

	err = l.run(ctx)
	if ctx.Err() != nil || s.State() != StateRunning {
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn(context.Background(), "loop stopped with error",
				logger.String("loop", l.name), logger.Error(err))
		}
		return nil
	}
	if err == nil {
		err = errors.New("returned unexpectedly")
	}
	return fmt.Errorf("%w: %s: %w", ErrWorkerDied, l.name, err)
}

func (s *Service) beat(name string) func() {
	live := s.liveness[name]
	return func() { live.lastBeat.Store(time.Now().UnixNano()) }
}

func (s *Service) heartbeatLoop(ctx context.Context) error {
	beat := s.beat(LoopHeartbeat)
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		beat()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.deps.Collector.SendHeartbeat(ctx); err != nil {
				metrics.RecordHeartbeat("error")
				if ctx.Err() == nil {
					s.logger.Warn(ctx, "heartbeat failed", logger.Error(err))
				}
				continue
			}
			metrics.RecordHeartbeat("ok")
		}
	}
}

func (s *Service) captureLoop(ctx context.Context) error {
	beat := s.beat(LoopCapture)
	ticker := time.NewTicker(s.captureInterval)
	defer ticker.Stop()

	for {
		beat()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.CaptureOnce(ctx)
		}
	}
}

// CaptureOnce takes one capture, stores it and hands it to inference.
// Failures are logged and counted, never returned.
func (s *Service) CaptureOnce(ctx context.Context) {
	ref, err := s.deps.Capturer.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.RecordCapture("error")
		s.logger.Warn(ctx, "capture failed", logger.Error(err))
		return
	}

	c := model.Capture{Ref: ref, Kind: model.SourceScreenshot, CapturedAt: time.Now().UTC()}
	if locator, err := s.deps.Storage.Save(ctx, ref); err != nil {
		metrics.RecordErrorByComponent(LoopCapture, "storage")
		s.logger.Warn(ctx, "evidence not stored, using local path", logger.String("ref", ref), logger.Error(err))
	} else {
		c.Locator = locator
	}

	if !s.handoff.Enqueue(ctx, c, s.cfg.HandoffEnqueueTimeout()) {
		metrics.RecordCapture("dropped")
		s.logger.Warn(ctx, "hand-off queue full, capture dropped",
			logger.String("ref", ref),
			logger.Int("capacity", s.handoff.Cap()),
		)
	} else {
		metrics.RecordCapture("ok")
	}

	if dir, ok := s.deps.Capturer.(interface{ Dir() string }); ok {
		if removed, err := storage.Prune(dir.Dir(), s.cfg.MaxScreenshots); err != nil {
			s.logger.Warn(ctx, "evidence cleanup failed", logger.Error(err))
		} else if removed > 0 {
			s.logger.Debug(ctx, "evidence cleaned up", logger.Int("removed", removed))
		}
	}
}
