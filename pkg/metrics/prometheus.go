// Package metrics provides Prometheus metrics for the pitwall race service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pitwall service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Session metrics
	sessionsActive   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	commands         *prometheus.CounterVec
	narrationEvents  prometheus.Counter
	payloadOutcomes  *prometheus.CounterVec
	restartPrompts   prometheus.Counter
	sessionMailboxes prometheus.Gauge

	// Race metrics
	lapsResolved  *prometheus.CounterVec
	overtakes     prometheus.Counter
	incidents     prometheus.Counter
	racesFinished prometheus.Counter

	// Oracle metrics
	oracleLatency   *prometheus.HistogramVec
	oracleFallbacks *prometheus.CounterVec

	// Prediction queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Prediction worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "pitwall",
		subsystem:        "race",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.sessionsActive = m.gauge("sessions_active", "Number of connected race sessions")
	m.sessionsTotal = m.counter("sessions_total", "Total number of race sessions opened")
	m.commands = m.counterVec("commands_total", "Commands received by name and result", "command", "result")
	m.narrationEvents = m.counter("narration_events_total", "Narration events emitted by the engine")
	m.payloadOutcomes = m.counterVec("payloads_total", "Outgoing payloads by delivery outcome", "outcome")
	m.restartPrompts = m.counter("restart_prompts_total", "Restart prompts synthesized by the delivery layer")
	m.sessionMailboxes = m.gauge("session_mailbox_depth", "Pending messages across session mailboxes")

	m.lapsResolved = m.counterVec("laps_resolved_total", "Laps resolved by prediction source", "source")
	m.overtakes = m.counter("overtakes_total", "Position swaps resolved")
	m.incidents = m.counter("incidents_total", "On-track incidents drawn during laps")
	m.racesFinished = m.counter("races_finished_total", "Races that reached the chequered flag")

	m.oracleLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "oracle_latency_milliseconds",
		Help:        "Prediction latency in milliseconds by outcome",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	}, []string{"outcome"})
	m.oracleFallbacks = m.counterVec("oracle_fallbacks_total", "Laps resolved by the heuristic fallback", "reason")

	m.queueSize = m.gauge("queue_size", "Current prediction queue size")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum prediction queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Prediction queue utilization ratio (0-1)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of prediction requests enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of prediction requests dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Prediction requests rejected by a full queue")

	m.workerCount = m.gauge("worker_count", "Number of prediction workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Prediction workers currently running a request")
	m.workerIdleCount = m.gauge("worker_idle_count", "Prediction workers waiting for work")
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_processing_latency_milliseconds",
		Help:        "Worker processing latency in milliseconds",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
	m.workerErrorRate = m.counter("worker_errors_total", "Predictions that returned an error")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request duration in seconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// Session Metrics Functions.

// SessionOpened increments the active and total session counts.
func SessionOpened() {
	globalManager.sessionsActive.Inc()
	globalManager.sessionsTotal.Inc()
}

// SessionClosed decrements the active session count.
func SessionClosed() {
	globalManager.sessionsActive.Dec()
}

// RecordCommand counts a command by name and result (ok, state_error, invalid_selection).
func RecordCommand(command, result string) {
	globalManager.commands.WithLabelValues(command, result).Inc()
}

// RecordNarrationEvents adds n engine events.
func RecordNarrationEvents(n int) {
	globalManager.narrationEvents.Add(float64(n))
}

// RecordPayload counts a payload by delivery outcome (admitted, duplicate, paced).
func RecordPayload(outcome string) {
	globalManager.payloadOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRestartPrompt increments the synthesized restart prompt counter.
func RecordRestartPrompt() {
	globalManager.restartPrompts.Inc()
}

// AddMailboxDepth adjusts the pending mailbox gauge by delta.
func AddMailboxDepth(delta int) {
	globalManager.sessionMailboxes.Add(float64(delta))
}

// Race Metrics Functions.

// RecordLapResolved counts a lap by prediction source (model or heuristic).
func RecordLapResolved(source string) {
	globalManager.lapsResolved.WithLabelValues(source).Inc()
}

// RecordOvertakes adds n resolved position swaps.
func RecordOvertakes(n int) {
	globalManager.overtakes.Add(float64(n))
}

// RecordIncidents counts incidents drawn on a lap.
func RecordIncidents(n int) {
	globalManager.incidents.Add(float64(n))
}

// RecordRaceFinished increments the finished race counter.
func RecordRaceFinished() {
	globalManager.racesFinished.Inc()
}

// Oracle Metrics Functions.

// RecordOracleLatency records prediction latency in milliseconds.
func RecordOracleLatency(outcome string, latencyMs float64) {
	globalManager.oracleLatency.WithLabelValues(outcome).Observe(latencyMs)
}

// RecordOracleFallback counts a heuristic fallback by reason (timeout, error, invalid, disabled).
func RecordOracleFallback(reason string) {
	globalManager.oracleFallbacks.WithLabelValues(reason).Inc()
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

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
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

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
