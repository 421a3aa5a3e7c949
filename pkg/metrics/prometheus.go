// Package metrics provides Prometheus metrics for the tally datastore.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Remote store calls, as seen by the retry executor
	storeAttempts  *prometheus.CounterVec
	storeFailures  *prometheus.CounterVec
	retryExhausted *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec

	// Template lifecycle
	loads           *prometheus.CounterVec
	saves           *prometheus.CounterVec
	loadedInstances *prometheus.GaugeVec
	autosaveFires   *prometheus.CounterVec

	// Sync fan-out into ranked stores
	syncDispatches   *prometheus.CounterVec
	rankedIncrements *prometheus.CounterVec
	leaderboardReads *prometheus.CounterVec
	statMutations    *prometheus.CounterVec

	// Repository adapters
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Lifecycle event pipeline
	queueSize           prometheus.Gauge
	queueCapacity       prometheus.Gauge
	queueEnqueueErrors  *prometheus.CounterVec
	lifecycleEvents     *prometheus.CounterVec
	lifecycleDuplicates prometheus.Counter
	workerCount         prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tally",
		subsystem:        "datastore",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.storeAttempts = m.counterVec("store_attempts_total", "Remote store invocations by operation", "op")
	m.storeFailures = m.counterVec("store_failures_total", "Failed remote store invocations by operation", "op")
	m.retryExhausted = m.counterVec("store_retry_exhausted_total", "Operations that failed on every attempt", "op")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Remote store call latency in milliseconds", "op")

	m.loads = m.counterVec("loads_total", "Instance loads by template and outcome", "template", "outcome")
	m.saves = m.counterVec("saves_total", "Instance saves by template, trigger and outcome", "template", "trigger", "outcome")
	m.loadedInstances = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "loaded_instances",
		Help:      "Instances currently held in memory per template",
	}, []string{"template"})
	m.autosaveFires = m.counterVec("autosave_fires_total", "Autosave timer firings per template", "template")

	m.syncDispatches = m.counterVec("sync_dispatches_total", "Sync observer invocations per source template", "template")
	m.rankedIncrements = m.counterVec("ranked_increments_total", "Ranked store increments by template and outcome", "template", "outcome")
	m.leaderboardReads = m.counterVec("leaderboard_reads_total", "Top-N reads by template and outcome", "template", "outcome")
	m.statMutations = m.counterVec("stat_mutations_total", "Stat facade mutations by operation and outcome", "op", "outcome")

	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds", "Adapter write latency in milliseconds")
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Adapter read latency in milliseconds")

	m.queueSize = m.gauge("queue_size", "Lifecycle events waiting to be processed")
	m.queueCapacity = m.gauge("queue_capacity", "Lifecycle queue capacity")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected lifecycle enqueues by reason", "reason")
	m.lifecycleEvents = m.counterVec("lifecycle_events_total", "Processed lifecycle events by kind and outcome", "kind", "outcome")
	m.lifecycleDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lifecycle_duplicates_total",
		Help:      "Redelivered lifecycle events dropped by dedupe",
	})
	m.workerCount = m.gauge("worker_count", "Lifecycle workers running")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations in milliseconds", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// Store calls.

func RecordStoreAttempt(op string) { globalManager.storeAttempts.WithLabelValues(op).Inc() }

func RecordStoreFailure(op string) { globalManager.storeFailures.WithLabelValues(op).Inc() }

func RecordRetryExhausted(op string) { globalManager.retryExhausted.WithLabelValues(op).Inc() }

func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// Templates.

func RecordLoad(template, outcome string) {
	globalManager.loads.WithLabelValues(template, outcome).Inc()
}

func RecordSave(template, trigger, outcome string) {
	globalManager.saves.WithLabelValues(template, trigger, outcome).Inc()
}

func UpdateLoadedInstances(template string, count int) {
	globalManager.loadedInstances.WithLabelValues(template).Set(float64(count))
}

func RecordAutosave(template string) { globalManager.autosaveFires.WithLabelValues(template).Inc() }

func RecordSyncDispatch(template string) { globalManager.syncDispatches.WithLabelValues(template).Inc() }

func RecordRankedIncrement(template, outcome string) {
	globalManager.rankedIncrements.WithLabelValues(template, outcome).Inc()
}

func RecordLeaderboardRead(template, outcome string) {
	globalManager.leaderboardReads.WithLabelValues(template, outcome).Inc()
}

func RecordStatMutation(op, outcome string) {
	globalManager.statMutations.WithLabelValues(op, outcome).Inc()
}

// Repository.

func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Lifecycle pipeline.

func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

func RecordLifecycleEvent(kind, outcome string) {
	globalManager.lifecycleEvents.WithLabelValues(kind, outcome).Inc()
}

func RecordLifecycleDuplicate() { globalManager.lifecycleDuplicates.Inc() }

func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry backing the package-level recorders.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
