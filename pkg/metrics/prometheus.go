package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion and evaluation
	readingsIngested  prometheus.Counter
	readingsDuplicate prometheus.Counter
	readingsStale     prometheus.Counter
	readingsRejected  *prometheus.CounterVec
	readingsEvaluated prometheus.Counter
	evaluationLatency prometheus.Histogram

	// Alerting
	zoneRisk         *prometheus.GaugeVec
	zoneAlertLevel   *prometheus.GaugeVec
	alertTransitions *prometheus.CounterVec
	zonesTracked     prometheus.Gauge
	notifyErrors     *prometheus.CounterVec
	mqttMessages     *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Store
	storeAppendLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram
	storeRecords       prometheus.Gauge

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crowdews",
		subsystem:        "ews",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.readingsIngested = auto.NewCounter(m.counterOpts("readings_ingested_total", "Readings accepted into the evaluation queue"))
	m.readingsDuplicate = auto.NewCounter(m.counterOpts("readings_duplicate_total", "Readings dropped because their ID was already seen"))
	m.readingsStale = auto.NewCounter(m.counterOpts("readings_stale_total", "Readings dropped because they were not newer than the zone's last tick"))
	m.readingsRejected = auto.NewCounterVec(m.counterOpts("readings_rejected_total", "Readings rejected before evaluation by reason"), []string{"reason"})
	m.readingsEvaluated = auto.NewCounter(m.counterOpts("readings_evaluated_total", "Readings evaluated by a zone engine"))
	m.evaluationLatency = auto.NewHistogram(m.histogramOpts("evaluation_latency_milliseconds", "Time from dequeue to stored record", nil))

	m.zoneRisk = auto.NewGaugeVec(m.gaugeOpts("zone_risk", "Latest risk value fed to the zone engine"), []string{"zone"})
	m.zoneAlertLevel = auto.NewGaugeVec(m.gaugeOpts("zone_alert_level", "Committed alert level per zone (0 green .. 3 red)"), []string{"zone"})
	m.alertTransitions = auto.NewCounterVec(m.counterOpts("alert_transitions_total", "Committed alert level changes"), []string{"zone", "from", "to"})
	m.zonesTracked = auto.NewGauge(m.gaugeOpts("zones_tracked", "Zones with a live engine"))
	m.notifyErrors = auto.NewCounterVec(m.counterOpts("notify_errors_total", "Failed alert notifications by notifier"), []string{"notifier"})
	m.mqttMessages = auto.NewCounterVec(m.counterOpts("mqtt_messages_total", "MQTT messages received by outcome"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"})

	m.storeAppendLatency = auto.NewHistogram(m.histogramOpts("store_append_latency_milliseconds", "Record append latency in milliseconds", nil))
	m.storeQueryLatency = auto.NewHistogram(m.histogramOpts("store_query_latency_milliseconds", "Record query latency in milliseconds", nil))
	m.storeRecords = auto.NewGauge(m.gaugeOpts("store_records", "Records currently retained by the store"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Readings waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size divided by capacity"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Readings enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Readings dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Enqueue attempts that failed"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Zone workers running"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Zone workers currently evaluating a reading"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Worker handling latency in milliseconds", nil))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Readings a worker failed to handle"))

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordReadingIngested counts a reading accepted into the queue.
func RecordReadingIngested() { globalManager.readingsIngested.Inc() }

// RecordReadingDuplicate counts a replayed reading.
func RecordReadingDuplicate() { globalManager.readingsDuplicate.Inc() }

// RecordReadingStale counts a reading older than its zone's last tick.
func RecordReadingStale() { globalManager.readingsStale.Inc() }

// RecordReadingRejected counts a reading rejected for reason.
func RecordReadingRejected(reason string) { globalManager.readingsRejected.WithLabelValues(reason).Inc() }

// RecordReadingEvaluated counts an evaluated reading.
func RecordReadingEvaluated() { globalManager.readingsEvaluated.Inc() }

// RecordEvaluationLatency records evaluation latency in milliseconds.
func RecordEvaluationLatency(latencyMs float64) { globalManager.evaluationLatency.Observe(latencyMs) }

// UpdateZoneRisk sets the latest engine input for zone.
func UpdateZoneRisk(zone string, risk float64) { globalManager.zoneRisk.WithLabelValues(zone).Set(risk) }

// UpdateZoneAlertLevel sets the committed level ordinal for zone.
func UpdateZoneAlertLevel(zone string, level int) {
	globalManager.zoneAlertLevel.WithLabelValues(zone).Set(float64(level))
}

// DeleteZone drops the per-zone series when monitoring of zone ends.
func DeleteZone(zone string) {
	globalManager.zoneRisk.DeleteLabelValues(zone)
	globalManager.zoneAlertLevel.DeleteLabelValues(zone)
	globalManager.alertTransitions.DeletePartialMatch(prometheus.Labels{"zone": zone})
}

// RecordAlertTransition counts a committed level change.
func RecordAlertTransition(zone, from, to string) {
	globalManager.alertTransitions.WithLabelValues(zone, from, to).Inc()
}

// UpdateZonesTracked sets the number of live engines.
func UpdateZonesTracked(count int) { globalManager.zonesTracked.Set(float64(count)) }

// RecordNotifyError counts a failed notification.
func RecordNotifyError(notifier string) { globalManager.notifyErrors.WithLabelValues(notifier).Inc() }

// RecordMQTTMessage counts an MQTT message by outcome.
func RecordMQTTMessage(result string) { globalManager.mqttMessages.WithLabelValues(result).Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordStoreAppendLatency records append latency in milliseconds.
func RecordStoreAppendLatency(latencyMs float64) { globalManager.storeAppendLatency.Observe(latencyMs) }

// RecordStoreQueryLatency records query latency in milliseconds.
func RecordStoreQueryLatency(latencyMs float64) { globalManager.storeQueryLatency.Observe(latencyMs) }

// UpdateStoreRecords sets the number of retained records.
func UpdateStoreRecords(count int) { globalManager.storeRecords.Set(float64(count)) }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) { globalManager.workerActiveCount.Add(float64(delta)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrorRate.Inc() }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
