// Package metrics provides Prometheus metrics for the saltyscope wager engine.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Match lifecycle
	observations   prometheus.Counter
	matchEvents    *prometheus.CounterVec
	policyUpdates  prometheus.Counter
	rebetRequests  prometheus.Counter
	commandsQueued prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueRejected  *prometheus.CounterVec

	// Rating lookups
	ratingFetches       *prometheus.CounterVec
	ratingLookupLatency prometheus.Histogram

	// Decisions and wagers
	decisions       *prometheus.CounterVec
	wagersPlaced    *prometheus.CounterVec
	wagerAmount     prometheus.Histogram
	executionErrors prometheus.Counter

	// Telemetry
	publishErrors  *prometheus.CounterVec
	publishDropped *prometheus.CounterVec
	streamClients  *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager and the registry it records into.
var (
	globalManager  atomic.Pointer[Manager]             //nolint:gochecknoglobals // intentional global for singleton metrics manager
	customRegistry atomic.Pointer[prometheus.Registry] //nolint:gochecknoglobals // intentional global for metrics registry
)

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	Configure()
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it at startup, before the metrics endpoint is mounted;
// counts recorded earlier stay with the old registry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	m := NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry.Store(registry)
	globalManager.Store(m)
}

func global() *Manager { return globalManager.Load() }

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "saltyscope",
		subsystem:        "engine",
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
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)

	m.observations = auto.NewCounter(m.counterOpts("observations_total", "Raw page observations accepted by the engine"))
	m.matchEvents = auto.NewCounterVec(m.counterOpts("match_events_total", "Match lifecycle events emitted by the tracker"), []string{"event"})
	m.policyUpdates = auto.NewCounter(m.counterOpts("policy_updates_total", "Policy replacements applied"))
	m.rebetRequests = auto.NewCounter(m.counterOpts("rebet_requests_total", "Explicit re-decide requests"))
	m.commandsQueued = auto.NewGauge(m.gaugeOpts("queue_size", "Commands waiting for the engine actor"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Configured engine queue capacity"))
	m.queueRejected = auto.NewCounterVec(m.counterOpts("queue_rejected_total", "Commands rejected by the engine queue"), []string{"reason"})

	m.ratingFetches = auto.NewCounterVec(m.counterOpts("rating_fetches_total", "Rating lookups by outcome"), []string{"outcome"})
	m.ratingLookupLatency = auto.NewHistogram(m.histogramOpts("rating_lookup_latency_milliseconds", "Latency of a single rating lookup", m.histogramBuckets))

	m.decisions = auto.NewCounterVec(m.counterOpts("decisions_total", "Strategy decisions by reason"), []string{"reason"})
	m.wagersPlaced = auto.NewCounterVec(m.counterOpts("wagers_placed_total", "Wagers acknowledged by the acting surface"), []string{"target"})
	m.wagerAmount = auto.NewHistogram(m.histogramOpts("wager_amount", "Committed wager amounts", prometheus.ExponentialBuckets(1, 4, 12)))
	m.executionErrors = auto.NewCounter(m.counterOpts("execution_errors_total", "Wagers the acting surface could not take"))

	m.publishErrors = auto.NewCounterVec(m.counterOpts("publish_errors_total", "Status snapshots a sink failed to deliver"), []string{"sink"})
	m.publishDropped = auto.NewCounterVec(m.counterOpts("publish_dropped_total", "Status snapshots dropped because a sink fell behind"), []string{"sink"})
	m.streamClients = auto.NewGaugeVec(m.gaugeOpts("stream_clients", "Connected websocket clients"), []string{"role"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total", "Errors by component and type"), []string{"component", "type"})
}

// RecordObservation increments the accepted observation counter.
func RecordObservation() { global().observations.Inc() }

// RecordMatchEvent counts a tracker event by name.
func RecordMatchEvent(event string) { global().matchEvents.WithLabelValues(event).Inc() }

// RecordPolicyUpdate counts a policy replacement.
func RecordPolicyUpdate() { global().policyUpdates.Inc() }

// RecordRebet counts an explicit re-decide request.
func RecordRebet() { global().rebetRequests.Inc() }

// UpdateQueueSize sets the current engine queue length.
func UpdateQueueSize(size int) { global().commandsQueued.Set(float64(size)) }

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(capacity int) { global().queueCapacity.Set(float64(capacity)) }

// RecordQueueRejected counts a command the queue refused.
func RecordQueueRejected(reason string) { global().queueRejected.WithLabelValues(reason).Inc() }

// RecordRatingFetch counts a lookup outcome: found, not_found, error, stale.
func RecordRatingFetch(outcome string) { global().ratingFetches.WithLabelValues(outcome).Inc() }

// RecordRatingLookupLatency records a lookup's latency in milliseconds.
func RecordRatingLookupLatency(latencyMs float64) { global().ratingLookupLatency.Observe(latencyMs) }

// RecordDecision counts a resolver outcome by reason code.
func RecordDecision(reason string) { global().decisions.WithLabelValues(reason).Inc() }

// RecordWagerPlaced counts an acknowledged wager and its amount.
func RecordWagerPlaced(target string, amount int64) {
	global().wagersPlaced.WithLabelValues(target).Inc()
	global().wagerAmount.Observe(float64(amount))
}

// RecordExecutionError counts a placement the acting surface refused.
func RecordExecutionError() { global().executionErrors.Inc() }

// RecordPublishError counts a failed snapshot delivery for a sink.
func RecordPublishError(sink string) { global().publishErrors.WithLabelValues(sink).Inc() }

// RecordPublishDropped counts a snapshot dropped for a sink whose queue was full.
func RecordPublishDropped(sink string) { global().publishDropped.WithLabelValues(sink).Inc() }

// UpdateStreamClients sets the number of connected websocket clients for a role.
func UpdateStreamClients(role string, count int) {
	global().streamClients.WithLabelValues(role).Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	global().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	global().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	global().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry.Load()
}
