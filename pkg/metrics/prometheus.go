// Package metrics provides Prometheus metrics for the learning path service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Expression capture
	observationsAggregated prometheus.Counter
	snapshotsCaptured      prometheus.Counter
	captureErrors          prometheus.Counter
	classificationLatency  prometheus.Histogram
	classificationErrors   prometheus.Counter

	// Frame queue
	frameQueueSize     prometheus.Gauge
	frameQueueCapacity prometheus.Gauge
	framesEnqueued     prometheus.Counter
	framesDequeued     prometheus.Counter
	framesDropped      prometheus.Counter
	captureSessions    prometheus.Gauge

	// Model
	modelLoaded       prometheus.Gauge
	inferences        prometheus.Counter
	inferenceLatency  prometheus.Histogram
	inferenceErrors   *prometheus.CounterVec
	learningPathClass *prometheus.CounterVec

	// Pipeline
	pipelineRuns     prometheus.Counter
	pipelineErrors   *prometheus.CounterVec
	pipelineDuration prometheus.Histogram

	// Question bank
	questionsServed prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "learnpath",
		subsystem:        "adaptive",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name),
		Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name),
		Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name),
		Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name),
		Help: help, ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.observationsAggregated = m.counter("observations_aggregated_total", "Expression observations folded into aggregate vectors")
	m.snapshotsCaptured = m.counter("snapshots_captured_total", "Frames captured and classified")
	m.captureErrors = m.counter("capture_errors_total", "Frame capture failures")
	m.classificationLatency = m.histogram("classification_latency_milliseconds", "Expression classifier latency in milliseconds")
	m.classificationErrors = m.counter("classification_errors_total", "Expression classifier failures")

	m.frameQueueSize = m.gauge("frame_queue_size", "Frames waiting in the in-memory frame queue")
	m.frameQueueCapacity = m.gauge("frame_queue_capacity", "Capacity of the in-memory frame queue")
	m.framesEnqueued = m.counter("frames_enqueued_total", "Frames accepted by the frame queue")
	m.framesDequeued = m.counter("frames_dequeued_total", "Frames handed out by the frame queue")
	m.framesDropped = m.counter("frames_dropped_total", "Frames rejected because the queue was full or closed")
	m.captureSessions = m.gauge("capture_sessions", "Live capture sessions fed over the API")

	m.modelLoaded = m.gauge("model_loaded", "1 when model parameters are loaded")
	m.inferences = m.counter("inferences_total", "Successful learning path inferences")
	m.inferenceLatency = m.histogram("inference_latency_milliseconds", "Forward pass and decode latency in milliseconds")
	m.inferenceErrors = m.counterVec("inference_errors_total", "Failed inferences by error kind", "kind")
	m.learningPathClass = m.counterVec("learning_path_assignments_total", "Difficulty classes assigned per question", "question", "class")

	m.pipelineRuns = m.counter("pipeline_runs_total", "Completed capture-to-path pipeline runs")
	m.pipelineErrors = m.counterVec("pipeline_errors_total", "Failed pipeline runs by error kind", "kind")
	m.pipelineDuration = m.histogram("pipeline_duration_seconds", "Wall time of a pipeline run in seconds")

	m.questionsServed = m.counter("questions_served_total", "Questions selected from the question bank")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_seconds"),
		Help: "HTTP request duration in seconds", ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
}

// RecordObservationsAggregated counts observations folded into one vector.
func (m *Manager) RecordObservationsAggregated(n int) {
	if !m.enabled || n <= 0 {
		return
	}
	m.observationsAggregated.Add(float64(n))
}

// RecordSnapshotCaptured counts one captured and classified frame.
func (m *Manager) RecordSnapshotCaptured() {
	if m.enabled {
		m.snapshotsCaptured.Inc()
	}
}

// RecordCaptureError counts a frame source failure.
func (m *Manager) RecordCaptureError() {
	if m.enabled {
		m.captureErrors.Inc()
	}
}

// RecordClassificationLatency observes one classifier call.
func (m *Manager) RecordClassificationLatency(latencyMs float64) {
	if m.enabled {
		m.classificationLatency.Observe(latencyMs)
	}
}

// RecordClassificationError counts a classifier failure.
func (m *Manager) RecordClassificationError() {
	if m.enabled {
		m.classificationErrors.Inc()
	}
}

// UpdateFrameQueue sets the frame queue size and capacity gauges.
func (m *Manager) UpdateFrameQueue(size, capacity int) {
	if !m.enabled {
		return
	}
	m.frameQueueSize.Set(float64(size))
	m.frameQueueCapacity.Set(float64(capacity))
}

// RecordFrameEnqueued counts a frame accepted by the queue.
func (m *Manager) RecordFrameEnqueued() {
	if m.enabled {
		m.framesEnqueued.Inc()
	}
}

// RecordFrameDequeued counts a frame handed to a consumer.
func (m *Manager) RecordFrameDequeued() {
	if m.enabled {
		m.framesDequeued.Inc()
	}
}

// RecordFrameDropped counts a frame the queue refused.
func (m *Manager) RecordFrameDropped() {
	if m.enabled {
		m.framesDropped.Inc()
	}
}

// UpdateCaptureSessions sets the number of open capture sessions.
func (m *Manager) UpdateCaptureSessions(n int) {
	if m.enabled {
		m.captureSessions.Set(float64(n))
	}
}

// UpdateModelLoaded flips the model_loaded gauge.
func (m *Manager) UpdateModelLoaded(loaded bool) {
	if !m.enabled {
		return
	}
	if loaded {
		m.modelLoaded.Set(1)
		return
	}
	m.modelLoaded.Set(0)
}

// RecordInference observes a successful inference.
func (m *Manager) RecordInference(latencyMs float64) {
	if !m.enabled {
		return
	}
	m.inferences.Inc()
	m.inferenceLatency.Observe(latencyMs)
}

// RecordInferenceError counts a failed inference by error kind.
func (m *Manager) RecordInferenceError(kind string) {
	if m.enabled {
		m.inferenceErrors.WithLabelValues(kind).Inc()
	}
}

// RecordLearningPath counts the class chosen for each question.
func (m *Manager) RecordLearningPath(path []int) {
	if !m.enabled {
		return
	}
	for q, c := range path {
		m.learningPathClass.WithLabelValues(strconv.Itoa(q), strconv.Itoa(c)).Inc()
	}
}

// RecordPipelineRun observes a completed pipeline run.
func (m *Manager) RecordPipelineRun(seconds float64) {
	if !m.enabled {
		return
	}
	m.pipelineRuns.Inc()
	m.pipelineDuration.Observe(seconds)
}

// RecordPipelineError counts a failed pipeline run by error kind.
func (m *Manager) RecordPipelineError(kind string) {
	if m.enabled {
		m.pipelineErrors.WithLabelValues(kind).Inc()
	}
}

// RecordQuestionsServed counts questions picked from the bank.
func (m *Manager) RecordQuestionsServed(n int) {
	if m.enabled && n > 0 {
		m.questionsServed.Add(float64(n))
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string) {
	if m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func (m *Manager) RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m.enabled {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	if m.enabled {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// Package-level shorthands over the global manager.

// RecordObservationsAggregated counts observations folded into one vector.
func RecordObservationsAggregated(n int) { globalManager.RecordObservationsAggregated(n) }

// RecordSnapshotCaptured counts one captured and classified frame.
func RecordSnapshotCaptured() { globalManager.RecordSnapshotCaptured() }

// RecordCaptureError counts a frame source failure.
func RecordCaptureError() { globalManager.RecordCaptureError() }

// RecordClassificationLatency observes one classifier call.
func RecordClassificationLatency(latencyMs float64) {
	globalManager.RecordClassificationLatency(latencyMs)
}

// RecordClassificationError counts a classifier failure.
func RecordClassificationError() { globalManager.RecordClassificationError() }

// UpdateFrameQueue sets the frame queue gauges.
func UpdateFrameQueue(size, capacity int) { globalManager.UpdateFrameQueue(size, capacity) }

// RecordFrameEnqueued counts a frame accepted by the queue.
func RecordFrameEnqueued() { globalManager.RecordFrameEnqueued() }

// RecordFrameDequeued counts a frame handed to a consumer.
func RecordFrameDequeued() { globalManager.RecordFrameDequeued() }

// RecordFrameDropped counts a frame the queue refused.
func RecordFrameDropped() { globalManager.RecordFrameDropped() }

// UpdateCaptureSessions sets the open capture sessions gauge.
func UpdateCaptureSessions(n int) { globalManager.UpdateCaptureSessions(n) }

// UpdateModelLoaded flips the model_loaded gauge.
func UpdateModelLoaded(loaded bool) { globalManager.UpdateModelLoaded(loaded) }

// RecordInference observes a successful inference.
func RecordInference(latencyMs float64) { globalManager.RecordInference(latencyMs) }

// RecordInferenceError counts a failed inference by error kind.
func RecordInferenceError(kind string) { globalManager.RecordInferenceError(kind) }

// RecordLearningPath counts the class chosen for each question.
func RecordLearningPath(path []int) { globalManager.RecordLearningPath(path) }

// RecordPipelineRun observes a completed pipeline run.
func RecordPipelineRun(seconds float64) { globalManager.RecordPipelineRun(seconds) }

// RecordPipelineError counts a failed pipeline run by error kind.
func RecordPipelineError(kind string) { globalManager.RecordPipelineError(kind) }

// RecordQuestionsServed counts questions picked from the bank.
func RecordQuestionsServed(n int) { globalManager.RecordQuestionsServed(n) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode)
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.RecordHTTPRequestDuration(endpoint, method, statusCode, duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// GetRegistry returns the registry backing the package-level functions.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
