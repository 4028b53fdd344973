package service

import (
	"context"
	"runtime"
	"time"

	"github.com/okian/worksight/internal/adapters/identity"
	"github.com/okian/worksight/pkg/logger"
	"github.com/okian/worksight/pkg/metrics"
)

// WorkerHealth is the liveness of one loop.
type WorkerHealth struct {
	Up       bool      `json:"up"`
	LastBeat time.Time `json:"last_beat,omitempty"`
}

// HealthSnapshot is the periodic self-report of the runtime.
type HealthSnapshot struct {
	EndpointID       string                  `json:"endpoint_id"`
	Hostname         string                  `json:"hostname"`
	SessionID        int64                   `json:"session_id,omitempty"`
	State            string                  `json:"state"`
	DiskUsagePercent float64                 `json:"disk_usage_percent"`
	FreeDiskGB       float64                 `json:"free_disk_gb"`
	Backlog          int                     `json:"backlog"`
	DeadLetters      int                     `json:"dead_letters"`
	HandoffLength    int                     `json:"handoff_length"`
	HandoffCapacity  int                     `json:"handoff_capacity"`
	HeapBytes        uint64                  `json:"heap_bytes"`
	Goroutines       int                     `json:"goroutines"`
	Workers          map[string]WorkerHealth `json:"workers"`
	Timestamp        time.Time               `json:"timestamp"`
}

// Snapshot gathers the current health. Missing facts are left zero.
func (s *Service) Snapshot(ctx context.Context) HealthSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := HealthSnapshot{
		EndpointID:      s.deps.EndpointID,
		Hostname:        s.hostname,
		State:           s.State().String(),
		HandoffLength:   s.handoff.Len(),
		HandoffCapacity: s.handoff.Cap(),
		HeapBytes:       mem.HeapAlloc,
		Goroutines:      runtime.NumGoroutine(),
		Workers:         make(map[string]WorkerHealth, len(s.liveness)),
		Timestamp:       time.Now().UTC(),
	}
	if sid, ok := s.deps.Collector.(interface{ SessionID() int64 }); ok {
		snap.SessionID = sid.SessionID()
	}
	for name, live := range s.liveness {
		wh := WorkerHealth{Up: live.up.Load()}
		if ns := live.lastBeat.Load(); ns > 0 {
			wh.LastBeat = time.Unix(0, ns).UTC()
		}
		snap.Workers[name] = wh
	}

	if du, err := identity.Disk(s.cfg.DataDir); err == nil {
		snap.DiskUsagePercent = du.UsedPercent
		snap.FreeDiskGB = du.FreeGB
	}
	if st, err := s.deps.Store.Stats(ctx); err == nil {
		snap.Backlog = st.Pending
		snap.DeadLetters = st.DeadLetters
	} else {
		s.logger.Debug(ctx, "queue stats unavailable", logger.Error(err))
	}
	return snap
}

// LastHealth returns the snapshot taken by the most recent health tick, or
// nil before the first one.
func (s *Service) LastHealth() *HealthSnapshot { return s.lastHealth.Load() }

// GetStats returns the latest health snapshot, computing one when the
// health loop has not run yet.
func (s *Service) GetStats(ctx context.Context) HealthSnapshot {
	if snap := s.LastHealth(); snap != nil {
		return *snap
	}
	return s.Snapshot(ctx)
}

func (s *Service) healthLoop(ctx context.Context) error {
	beat := s.beat(LoopHealth)
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	for {
		beat()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.CheckHealth(ctx)
		}
	}
}

// CheckHealth records a snapshot, exports it as gauges and pushes it to the
// collector. It never panics out.
func (s *Service) CheckHealth(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent(LoopHealth, "panic")
			s.logger.Error(ctx, "health check panicked", logger.Any("panic", r))
		}
	}()

	snap := s.Snapshot(ctx)
	s.lastHealth.Store(&snap)

	metrics.UpdateSystemMemoryUsage(snap.HeapBytes)
	metrics.UpdateSystemGoroutineCount(snap.Goroutines)
	metrics.UpdateDiskUsage(snap.DiskUsagePercent / 100)
	metrics.UpdateBacklog(snap.Backlog)
	metrics.UpdateHandoffQueueSize(snap.HandoffLength)

	s.logger.Info(ctx, "health",
		logger.Int("backlog", snap.Backlog),
		logger.Int("dead_letters", snap.DeadLetters),
		logger.Int("handoff_length", snap.HandoffLength),
		logger.Float64("disk_usage_percent", snap.DiskUsagePercent),
		logger.Int("goroutines", snap.Goroutines),
	)

	if err := s.deps.Collector.SendHealth(ctx, snap); err != nil && ctx.Err() == nil {
		s.logger.Debug(ctx, "health report not delivered", logger.Error(err))
	}
}
