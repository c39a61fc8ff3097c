// Package metrics provides Prometheus metrics for the progress service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Progress operations
	unitStarts            prometheus.Counter
	assetUpdates          *prometheus.CounterVec
	pronunciationAttempts prometheus.Counter
	unitCompletions       *prometheus.CounterVec
	planEntriesSynced     prometheus.Counter
	unitScores            prometheus.Histogram
	operationLatency      *prometheus.HistogramVec
	operationErrors       *prometheus.CounterVec

	// Store and catalog
	storeQueryLatency *prometheus.HistogramVec
	catalogCache      *prometheus.CounterVec

	// Event ingestion
	eventsAccepted  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsRejected  *prometheus.CounterVec
	eventsApplied   *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lingotrack",
		subsystem:        "progress",
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.unitStarts = m.counter("unit_starts_total", "Start unit calls")
	m.assetUpdates = m.counterVec("asset_updates_total", "Asset progress updates by resulting completion state", "completed")
	m.pronunciationAttempts = m.counter("pronunciation_attempts_total", "Pronunciation attempts recorded")
	m.unitCompletions = m.counterVec("unit_completions_total", "Unit completions by score source", "score_source")
	m.planEntriesSynced = m.counter("plan_entries_synced_total", "Daily plan entries updated on unit completion")
	m.unitScores = m.histogram("unit_score", "Distribution of persisted unit scores", prometheus.LinearBuckets(10, 10, 10))
	m.operationLatency = m.histogramVec("operation_latency_milliseconds", "Coordinator and reporter operation latency in milliseconds", "operation")
	m.operationErrors = m.counterVec("operation_errors_total", "Failed operations by failure kind", "operation", "kind")

	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds", "Progress store query latency in milliseconds", "query")
	m.catalogCache = m.counterVec("catalog_cache_total", "Catalog cache lookups by result", "result")

	m.eventsAccepted = m.counter("events_accepted_total", "Progress events accepted for async processing")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Progress events dropped as client retries")
	m.eventsRejected = m.counterVec("events_rejected_total", "Progress events rejected at ingestion", "reason")
	m.eventsApplied = m.counterVec("events_applied_total", "Progress events applied by workers", "kind", "result")

	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Events enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently applying an event")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to apply one event in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Events that failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
}

// Progress operation metrics.

// RecordUnitStart increments the start unit counter.
func RecordUnitStart() {
	globalManager.unitStarts.Inc()
}

// RecordAssetUpdate counts an asset progress write.
func RecordAssetUpdate(completed bool) {
	globalManager.assetUpdates.WithLabelValues(strconv.FormatBool(completed)).Inc()
}

// RecordPronunciationAttempt increments the attempt counter.
func RecordPronunciationAttempt() {
	globalManager.pronunciationAttempts.Inc()
}

// RecordUnitCompletion counts a completion and observes its score.
func RecordUnitCompletion(score int, overridden bool) {
	source := "computed"
	if overridden {
		source = "override"
	}
	globalManager.unitCompletions.WithLabelValues(source).Inc()
	globalManager.unitScores.Observe(float64(score))
}

// RecordPlanEntriesSynced adds the number of plan entries touched by a completion.
func RecordPlanEntriesSynced(n int) {
	if n > 0 {
		globalManager.planEntriesSynced.Add(float64(n))
	}
}

// RecordOperationLatency observes the latency of a named operation.
func RecordOperationLatency(operation string, latencyMs float64) {
	globalManager.operationLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordOperationError counts a failed operation with its failure kind.
func RecordOperationError(operation, kind string) {
	globalManager.operationErrors.WithLabelValues(operation, kind).Inc()
}

// Store and catalog metrics.

// RecordStoreQueryLatency observes one store query.
func RecordStoreQueryLatency(query string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(query).Observe(latencyMs)
}

// RecordCatalogCacheHit counts a catalog cache hit.
func RecordCatalogCacheHit() {
	globalManager.catalogCache.WithLabelValues("hit").Inc()
}

// RecordCatalogCacheMiss counts a catalog cache miss.
func RecordCatalogCacheMiss() {
	globalManager.catalogCache.WithLabelValues("miss").Inc()
}

// RecordCatalogCacheError counts a failed cache read or write.
func RecordCatalogCacheError() {
	globalManager.catalogCache.WithLabelValues("error").Inc()
}

// Event ingestion metrics.

// RecordEventAccepted counts an event accepted for processing.
func RecordEventAccepted() {
	globalManager.eventsAccepted.Inc()
}

// RecordEventDuplicate counts a retried event.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRejected counts an event rejected at ingestion.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordEventApplied counts an event applied by a worker.
func RecordEventApplied(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	globalManager.eventsApplied.WithLabelValues(kind, result).Inc()
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the configured number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP metrics.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
