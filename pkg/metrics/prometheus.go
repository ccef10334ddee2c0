// Package metrics provides Prometheus metrics for the prediction gateway.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultInvocationBuckets cover the collaborator's range up to the 15s call timeout.
var DefaultInvocationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15} //nolint:gochecknoglobals // bucket layout

// Manager manages all Prometheus metrics for the gateway.
type Manager struct {
	namespace         string
	subsystem         string
	histogramBuckets  []float64
	invocationBuckets []float64
	customLabels      map[string]string
	registry          prometheus.Registerer

	// Rounds and invocations
	roundsStarted      *prometheus.CounterVec
	roundsCompleted    *prometheus.CounterVec
	roundsCancelled    *prometheus.CounterVec
	roundDuration      *prometheus.HistogramVec
	invocations        *prometheus.CounterVec
	invocationLatency  *prometheus.HistogramVec
	staleResults       *prometheus.CounterVec
	duplicateSubmits   *prometheus.CounterVec
	sessionSubmissions *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "agro",
		subsystem:        "predict",
		histogramBuckets:  prometheus.DefBuckets,
		invocationBuckets: DefaultInvocationBuckets,
		customLabels:      make(map[string]string),
		registry:          prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.roundsStarted = auto.NewCounterVec(
		m.counterOpts("rounds_started_total", "Total number of ensemble rounds started"),
		[]string{"domain"},
	)
	m.roundsCompleted = auto.NewCounterVec(
		m.counterOpts("rounds_completed_total", "Total number of rounds where every model answered, by outcome"),
		[]string{"domain", "outcome"},
	)
	m.roundsCancelled = auto.NewCounterVec(
		m.counterOpts("rounds_cancelled_total", "Total number of rounds cancelled before completion"),
		[]string{"domain"},
	)
	m.roundDuration = auto.NewHistogramVec(
		m.histogramOpts("round_duration_seconds", "Time from round start to its last result", m.invocationBuckets),
		[]string{"domain"},
	)
	m.invocations = auto.NewCounterVec(
		m.counterOpts("invocations_total", "Total number of model invocations by model and outcome"),
		[]string{"model", "outcome"},
	)
	m.invocationLatency = auto.NewHistogramVec(
		m.histogramOpts("invocation_latency_seconds", "Prediction service round trip latency", m.invocationBuckets),
		[]string{"domain"},
	)
	m.staleResults = auto.NewCounterVec(
		m.counterOpts("stale_results_total", "Snapshots discarded because their round was superseded"),
		[]string{"domain"},
	)
	m.duplicateSubmits = auto.NewCounterVec(
		m.counterOpts("duplicate_submissions_total", "Submissions ignored because their request id was seen before"),
		[]string{"domain"},
	)
	m.sessionSubmissions = auto.NewCounterVec(
		m.counterOpts("submissions_total", "Total number of accepted submissions per session"),
		[]string{"domain"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued invocations"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of invocations enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of invocations dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(
		m.histogramOpts("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", m.histogramBuckets),
	)

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of workers currently running an invocation"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Number of idle workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second", "Average invocations processed per second"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of invocations that ended in a failure"))

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// Round Metrics Functions.

// RecordRoundStarted counts a new round.
func RecordRoundStarted(domain string) {
	globalManager.roundsStarted.WithLabelValues(domain).Inc()
}

// RecordRoundCompleted counts a completed round and observes its duration.
func RecordRoundCompleted(domain, outcome string, seconds float64) {
	globalManager.roundsCompleted.WithLabelValues(domain, outcome).Inc()
	globalManager.roundDuration.WithLabelValues(domain).Observe(seconds)
}

// RecordRoundCancelled counts a cancelled round.
func RecordRoundCancelled(domain string) {
	globalManager.roundsCancelled.WithLabelValues(domain).Inc()
}

// RecordInvocation counts one model call by outcome ("ok" or an error kind).
func RecordInvocation(model, outcome string) {
	globalManager.invocations.WithLabelValues(model, outcome).Inc()
}

// RecordInvocationLatency observes a prediction service round trip.
func RecordInvocationLatency(domain string, seconds float64) {
	globalManager.invocationLatency.WithLabelValues(domain).Observe(seconds)
}

// RecordStaleResult counts a snapshot discarded by a session.
func RecordStaleResult(domain string) {
	globalManager.staleResults.WithLabelValues(domain).Inc()
}

// RecordDuplicateSubmission counts a submission ignored by request id.
func RecordDuplicateSubmission(domain string) {
	globalManager.duplicateSubmits.WithLabelValues(domain).Inc()
}

// RecordSubmission counts an accepted submission.
func RecordSubmission(domain string) {
	globalManager.sessionSubmissions.WithLabelValues(domain).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average invocations processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMetrics samples heap usage and goroutine count.
func UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.systemMemoryUsage.Set(float64(ms.HeapInuse))
	globalManager.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
