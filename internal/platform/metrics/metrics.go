package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the sync engine and its
// HTTP control surface.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	commandsTotal          *prometheus.CounterVec
	segmentChangesTotal    prometheus.Counter
	segmentsIngestedTotal  prometheus.Counter
	segmentsRejectedTotal  prometheus.Counter
	loopRepeatsTotal       prometheus.Counter
	loopCompletionsTotal   prometheus.Counter
	loopTimersActive       prometheus.Gauge
	recordingsTotal        prometheus.Counter
	recordingFailuresTotal prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_commands_dispatched_total",
			Help: "Input events resolved to a playback command",
		}, []string{"action"}),
		segmentChangesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_active_segment_changes_total",
			Help: "Number of active-segment-changed events emitted",
		}),
		segmentsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_segments_ingested_total",
			Help: "Segments accepted into the feed",
		}),
		segmentsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_segment_pages_rejected_total",
			Help: "Segment pages rejected as invalid",
		}),
		loopRepeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_loop_repeats_total",
			Help: "Loop boundary hits that seeked back to point A",
		}),
		loopCompletionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_loop_completions_total",
			Help: "Loops that ran their full repeat count and paused",
		}),
		loopTimersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_loop_timers_active",
			Help: "Live loop poll timers (never above 1)",
		}),
		recordingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_recordings_total",
			Help: "Recordings finalized into an artifact",
		}),
		recordingFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_recording_failures_total",
			Help: "Capture device requests that were denied or failed",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.commandsTotal,
		m.segmentChangesTotal,
		m.segmentsIngestedTotal,
		m.segmentsRejectedTotal,
		m.loopRepeatsTotal,
		m.loopCompletionsTotal,
		m.loopTimersActive,
		m.recordingsTotal,
		m.recordingFailuresTotal,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncCommand counts one dispatched command.
func (m *Metrics) IncCommand(action string) {
	m.commandsTotal.WithLabelValues(action).Inc()
}

// IncSegmentChanges increments the active segment change counter.
func (m *Metrics) IncSegmentChanges() {
	m.segmentChangesTotal.Inc()
}

// AddSegmentsIngested adds n accepted segments.
func (m *Metrics) AddSegmentsIngested(n int) {
	m.segmentsIngestedTotal.Add(float64(n))
}

// IncSegmentsRejected counts one rejected page.
func (m *Metrics) IncSegmentsRejected() {
	m.segmentsRejectedTotal.Inc()
}

// IncLoopRepeats increments the loop repeat counter.
func (m *Metrics) IncLoopRepeats() {
	m.loopRepeatsTotal.Inc()
}

// IncLoopCompletions increments the loop completion counter.
func (m *Metrics) IncLoopCompletions() {
	m.loopCompletionsTotal.Inc()
}

// SetLoopTimersActive sets the live loop timer gauge.
func (m *Metrics) SetLoopTimersActive(n int) {
	m.loopTimersActive.Set(float64(n))
}

// IncRecordings increments the finalized recordings counter.
func (m *Metrics) IncRecordings() {
	m.recordingsTotal.Inc()
}

// IncRecordingFailures increments the recording failure counter.
func (m *Metrics) IncRecordingFailures() {
	m.recordingFailuresTotal.Inc()
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
