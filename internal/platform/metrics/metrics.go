package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream ingestion
// service.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	chunksIngestedTotal    prometheus.Counter
	segmentsCommittedTotal prometheus.Counter
	sessionsStartedTotal   prometheus.Counter
	sessionsEndedTotal     prometheus.Counter
	sessionsSweptTotal     prometheus.Counter
	sessionsDeletedTotal   prometheus.Counter
	uploadFailuresTotal    prometheus.Counter
	persistFailuresTotal   prometheus.Counter
	activeSessions         prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		chunksIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_chunks_ingested_total",
			Help: "Total number of chunks accepted into sessions",
		}),
		segmentsCommittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_segments_committed_total",
			Help: "Total number of segments uploaded and committed",
		}),
		sessionsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_sessions_started_total",
			Help: "Total number of broadcast sessions started",
		}),
		sessionsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_sessions_ended_total",
			Help: "Total number of broadcast sessions ended by the client",
		}),
		sessionsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_sessions_swept_total",
			Help: "Total number of idle live sessions force-ended by the sweeper",
		}),
		sessionsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_sessions_deleted_total",
			Help: "Total number of ended sessions deleted after retention",
		}),
		uploadFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_upload_failures_total",
			Help: "Total number of failed segment uploads to the sink",
		}),
		persistFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_persist_failures_total",
			Help: "Total number of failed session-store snapshot writes",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_active_sessions",
			Help: "Number of sessions currently live",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.chunksIngestedTotal,
		m.segmentsCommittedTotal,
		m.sessionsStartedTotal,
		m.sessionsEndedTotal,
		m.sessionsSweptTotal,
		m.sessionsDeletedTotal,
		m.uploadFailuresTotal,
		m.persistFailuresTotal,
		m.activeSessions,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the error response counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// IncChunksIngested increments the ingested chunk counter.
func (m *Metrics) IncChunksIngested() { m.chunksIngestedTotal.Inc() }

// IncSegmentsCommitted increments the committed segment counter.
func (m *Metrics) IncSegmentsCommitted() { m.segmentsCommittedTotal.Inc() }

// IncSessionsStarted increments the started session counter.
func (m *Metrics) IncSessionsStarted() { m.sessionsStartedTotal.Inc() }

// IncSessionsEnded increments the ended session counter.
func (m *Metrics) IncSessionsEnded() { m.sessionsEndedTotal.Inc() }

// AddSessionsSwept adds n force-ended sessions.
func (m *Metrics) AddSessionsSwept(n int) { m.sessionsSweptTotal.Add(float64(n)) }

// AddSessionsDeleted adds n deleted sessions.
func (m *Metrics) AddSessionsDeleted(n int) { m.sessionsDeletedTotal.Add(float64(n)) }

// IncUploadFailures increments the upload failure counter.
func (m *Metrics) IncUploadFailures() { m.uploadFailuresTotal.Inc() }

// IncPersistFailures increments the persistence failure counter.
func (m *Metrics) IncPersistFailures() { m.persistFailuresTotal.Inc() }

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }

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
