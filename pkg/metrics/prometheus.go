// Package metrics provides Prometheus metrics for the WorkSight endpoint agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the agent.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Capture and hand-off
	capturesTotal   *prometheus.CounterVec
	handoffSize     prometheus.Gauge
	handoffCapacity prometheus.Gauge

	// Inference pipeline
	pipelineRuns     *prometheus.CounterVec
	pipelineLatency  prometheus.Histogram
	anomalyLabels    *prometheus.CounterVec
	baselineMature   prometheus.Gauge
	inferenceDropped *prometheus.CounterVec

	// Durable queue and delivery
	durableEnqueue  *prometheus.CounterVec
	durableBacklog  prometheus.Gauge
	deliveries      *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
	heartbeats      *prometheus.CounterVec

	// Runtime health
	workerUp     *prometheus.GaugeVec
	runtimeState prometheus.Gauge
	errorsByComp *prometheus.CounterVec

	// Local status server
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemDiskUsage      prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "worksight",
		subsystem:        "agent",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.capturesTotal = m.counterVec("captures_total",
		"Capture attempts by result (ok, error, dropped)", "result")
	m.handoffSize = m.gauge("handoff_queue_size",
		"Current number of captures waiting for inference")
	m.handoffCapacity = m.gauge("handoff_queue_capacity",
		"Capacity of the capture to inference hand-off queue")

	m.pipelineRuns = m.counterVec("pipeline_runs_total",
		"Inference pipeline runs by status (ok, partial, failed)", "status")
	m.pipelineLatency = m.histogram("pipeline_latency_milliseconds",
		"Inference pipeline latency in milliseconds")
	m.anomalyLabels = m.counterVec("anomaly_labels_total",
		"Produced metrics by anomaly label", "label")
	m.baselineMature = m.gauge("baseline_mature",
		"1 once the anomaly model switched to statistical mode")
	m.inferenceDropped = m.counterVec("inference_dropped_total",
		"Captures skipped before enqueue by reason (backlog, duplicate)", "reason")

	m.durableEnqueue = m.counterVec("durable_enqueue_total",
		"Durable queue inserts by result (inserted, duplicate, error)", "result")
	m.durableBacklog = m.gauge("durable_backlog",
		"Rows awaiting delivery (dead letters excluded)")
	m.deliveries = m.counterVec("deliveries_total",
		"Delivery attempts by result (success, retry, dead_letter)", "result")
	m.deliveryLatency = m.histogram("delivery_latency_milliseconds",
		"Collector round-trip latency in milliseconds")
	m.heartbeats = m.counterVec("heartbeats_total",
		"Heartbeats sent by result (ok, error)", "result")

	m.workerUp = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_up",
		Help:        "1 while the named runtime loop is running",
		ConstLabels: m.constLabels,
	}, []string{"worker"})
	m.runtimeState = m.gauge("runtime_state",
		"Runtime supervisor state (0 starting, 1 running, 2 stopping, 3 stopped)")
	m.errorsByComp = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")

	m.httpRequests = m.counterVec("http_requests_total",
		"Status server requests by endpoint, method and status code", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "Status server request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated by the agent")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemDiskUsage = m.gauge("system_disk_usage_ratio", "Used fraction of the data directory's filesystem")
}

// Capture and hand-off.

// RecordCapture counts a capture attempt with its result.
func RecordCapture(result string) {
	globalManager.capturesTotal.WithLabelValues(result).Inc()
}

// UpdateHandoffQueueSize sets the current hand-off queue length.
func UpdateHandoffQueueSize(size int) {
	globalManager.handoffSize.Set(float64(size))
}

// UpdateHandoffQueueCapacity sets the hand-off queue capacity.
func UpdateHandoffQueueCapacity(capacity int) {
	globalManager.handoffCapacity.Set(float64(capacity))
}

// Inference pipeline.

// RecordPipelineRun records a finished pipeline run.
func RecordPipelineRun(status string, latencyMs float64) {
	globalManager.pipelineRuns.WithLabelValues(status).Inc()
	globalManager.pipelineLatency.Observe(latencyMs)
}

// RecordAnomalyLabel counts a produced anomaly label.
func RecordAnomalyLabel(label string) {
	globalManager.anomalyLabels.WithLabelValues(label).Inc()
}

// SetBaselineMature flips the baseline maturity gauge.
func SetBaselineMature(mature bool) {
	globalManager.baselineMature.Set(boolToFloat(mature))
}

// RecordInferenceDrop counts a capture skipped before enqueue.
func RecordInferenceDrop(reason string) {
	globalManager.inferenceDropped.WithLabelValues(reason).Inc()
}

// Durable queue and delivery.

// RecordDurableEnqueue counts a durable queue insert attempt.
func RecordDurableEnqueue(result string) {
	globalManager.durableEnqueue.WithLabelValues(result).Inc()
}

// UpdateBacklog sets the durable backlog gauge.
func UpdateBacklog(count int) {
	globalManager.durableBacklog.Set(float64(count))
}

// RecordDelivery records a delivery attempt and its latency.
func RecordDelivery(result string, latencyMs float64) {
	globalManager.deliveries.WithLabelValues(result).Inc()
	globalManager.deliveryLatency.Observe(latencyMs)
}

// RecordHeartbeat counts a heartbeat with its result.
func RecordHeartbeat(result string) {
	globalManager.heartbeats.WithLabelValues(result).Inc()
}

// Runtime health.

// SetWorkerUp marks a runtime loop as running or stopped.
func SetWorkerUp(worker string, up bool) {
	globalManager.workerUp.WithLabelValues(worker).Set(boolToFloat(up))
}

// UpdateRuntimeState sets the supervisor state gauge.
func UpdateRuntimeState(state int) {
	globalManager.runtimeState.Set(float64(state))
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComp.WithLabelValues(component, errorType).Inc()
}

// Status server.

// RecordHTTPRequest counts a status server request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records a status server request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// UpdateDiskUsage sets the used fraction of the data filesystem.
func UpdateDiskUsage(ratio float64) {
	globalManager.systemDiskUsage.Set(ratio)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
