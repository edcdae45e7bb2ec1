package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names recorded in the rolling latency window.
const (
	StageFirstToken  = "first_token"
	StageStreamTotal = "stream_total"
)

// Metrics groups all Prometheus instruments used by the service. Each
// instance owns its registry so servers built in tests do not collide.
type Metrics struct {
	registry *prometheus.Registry

	ActiveStreams     prometheus.Gauge
	StreamEvents      *prometheus.CounterVec
	TokensEmitted     prometheus.Counter
	StreamWriteErrors *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	FirstTokenLatency prometheus.Histogram

	window *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of token streams currently being served.",
		}),
		StreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Stream lifecycle events by type.",
		}, []string{"event"}),
		TokensEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_emitted_total",
			Help:      "Tokens written to clients across all transports.",
		}),
		StreamWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_write_errors_total",
			Help:      "Failed token writes by transport.",
		}, []string{"transport"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		FirstTokenLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_token_latency_ms",
			Help:      "Latency from request acceptance to the first token write in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		window: newStageWindow(512),
	}
}

func (m *Metrics) ObserveFirstToken(d time.Duration) {
	ms := durationMS(d)
	m.FirstTokenLatency.Observe(ms)
	m.window.Observe(StageFirstToken, ms)
}

// ObserveStreamEnd records the stream's total duration and its outcome.
func (m *Metrics) ObserveStreamEnd(outcome string, d time.Duration) {
	m.StreamEvents.WithLabelValues(outcome).Inc()
	m.window.Observe(StageStreamTotal, durationMS(d))
	m.window.ObserveOutcome(outcome)
}

func (m *Metrics) SnapshotStreamStages() StageSnapshot {
	return m.window.Snapshot()
}

func (m *Metrics) ResetStreamStages() {
	m.window.Reset()
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
