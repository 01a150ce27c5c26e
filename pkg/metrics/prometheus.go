// Package metrics provides Prometheus metrics for the rating service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote fetch outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeThrottled = "throttled"
)

// Manager manages all Prometheus metrics for the rating service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Gateway
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	fallbacks         prometheus.Counter
	refreshes         prometheus.Counter
	remoteFetches     *prometheus.CounterVec
	remoteLatency     prometheus.Histogram
	selectionLatency  prometheus.Histogram
	unratableRecords  prometheus.Counter
	lockedIdentities  prometheus.Gauge
	pendingRefreshes  prometheus.Gauge
	lastOverallRating prometheus.Histogram

	// History store
	historyWrites      *prometheus.CounterVec
	historyReadLatency prometheus.Histogram
	historyCorrupt     prometheus.Counter

	// Catalog
	catalogEntries prometheus.Gauge
	catalogReloads *prometheus.CounterVec

	// Refresh queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level recorders

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rks",
		subsystem:        "rating",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.cacheHits = auto.NewCounter(m.counter("cache_hits_total", "Current-rating reads answered from history"))
	m.cacheMisses = auto.NewCounter(m.counter("cache_misses_total", "Current-rating reads that required a fresh save"))
	m.fallbacks = auto.NewCounter(m.counter("fallbacks_total", "Reads answered from the rolling window after a remote failure"))
	m.refreshes = auto.NewCounter(m.counter("refreshes_total", "Completed fetch-and-recompute events"))
	m.remoteFetches = auto.NewCounterVec(m.counter("remote_fetches_total", "Save data fetches by outcome"), []string{"outcome"})
	m.remoteLatency = auto.NewHistogram(m.histogram("remote_fetch_latency_milliseconds", "Save data fetch latency in milliseconds", nil))
	m.selectionLatency = auto.NewHistogram(m.histogram("selection_latency_milliseconds", "Best/perfect selection latency in milliseconds",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25}))
	m.unratableRecords = auto.NewCounter(m.counter("unratable_records_total", "Score records skipped for lack of a level constant"))
	m.lockedIdentities = auto.NewGauge(m.gauge("identity_locks", "Identities with a live serialization lock"))
	m.pendingRefreshes = auto.NewGauge(m.gauge("pending_refreshes", "Identities with a queued asynchronous refresh"))
	m.lastOverallRating = auto.NewHistogram(m.histogram("overall_rating", "Distribution of computed overall ratings",
		[]float64{1, 2, 4, 6, 8, 10, 12, 13, 14, 15, 16, 17}))

	m.historyWrites = auto.NewCounterVec(m.counter("history_writes_total", "History store writes by operation"), []string{"op"})
	m.historyReadLatency = auto.NewHistogram(m.histogram("history_read_latency_milliseconds", "History store read latency in milliseconds", nil))
	m.historyCorrupt = auto.NewCounter(m.counter("history_corrupt_total", "Persisted history documents that failed to parse"))

	m.catalogEntries = auto.NewGauge(m.gauge("catalog_entries", "Songs in the loaded difficulty catalog"))
	m.catalogReloads = auto.NewCounterVec(m.counter("catalog_reloads_total", "Difficulty catalog reloads by outcome"), []string{"outcome"})

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Queued refresh jobs"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Refresh queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueue_total", "Refresh jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counter("queue_dequeue_total", "Refresh jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counter("queue_enqueue_errors_total", "Rejected refresh jobs by reason"), []string{"reason"})

	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Refresh workers running"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "Refresh job latency in milliseconds", nil))
	m.workerErrors = auto.NewCounter(m.counter("worker_errors_total", "Refresh jobs that failed"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"})
	m.errorsByComponent = auto.NewCounterVec(m.counter("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordCacheHit counts a current-rating read served from history.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss counts a current-rating read that needed a fresh save.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordFallback counts a read answered from the rolling window after a failure.
func RecordFallback() { globalManager.fallbacks.Inc() }

// RecordRefresh counts a completed fetch-and-recompute and observes its rating.
func RecordRefresh(overall float64) {
	globalManager.refreshes.Inc()
	globalManager.lastOverallRating.Observe(overall)
}

// RecordRemoteFetch counts a save fetch. Unknown outcomes are rejected to keep
// label cardinality bounded.
func RecordRemoteFetch(outcome string, latencyMs float64) error {
	switch outcome {
	case OutcomeOK, OutcomeError, OutcomeTimeout, OutcomeThrottled:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
	globalManager.remoteFetches.WithLabelValues(outcome).Inc()
	globalManager.remoteLatency.Observe(latencyMs)
	return nil
}

// RecordSelectionLatency records best/perfect selection latency in milliseconds.
func RecordSelectionLatency(latencyMs float64) { globalManager.selectionLatency.Observe(latencyMs) }

// RecordUnratable adds n skipped records.
func RecordUnratable(n int) {
	if n > 0 {
		globalManager.unratableRecords.Add(float64(n))
	}
}

// UpdateIdentityLocks sets the number of live identity locks.
func UpdateIdentityLocks(n int) { globalManager.lockedIdentities.Set(float64(n)) }

// UpdatePendingRefreshes sets the number of identities with a queued refresh.
func UpdatePendingRefreshes(n int) { globalManager.pendingRefreshes.Set(float64(n)) }

// RecordHistoryWrite counts a history store write for op ("snapshot", "window", "prune").
func RecordHistoryWrite(op string) { globalManager.historyWrites.WithLabelValues(op).Inc() }

// RecordHistoryReadLatency records history read latency in milliseconds.
func RecordHistoryReadLatency(latencyMs float64) { globalManager.historyReadLatency.Observe(latencyMs) }

// RecordHistoryCorrupt counts a persisted document that failed to parse.
func RecordHistoryCorrupt() { globalManager.historyCorrupt.Inc() }

// UpdateCatalogEntries sets the number of songs in the difficulty catalog.
func UpdateCatalogEntries(n int) { globalManager.catalogEntries.Set(float64(n)) }

// RecordCatalogReload counts a catalog reload with outcome "ok" or "error".
func RecordCatalogReload(outcome string) { globalManager.catalogReloads.WithLabelValues(outcome).Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError counts a rejected enqueue by reason.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records refresh job latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
