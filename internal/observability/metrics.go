package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	AudioFrames      *prometheus.CounterVec
	AudioBytes       *prometheus.CounterVec
	UpstreamErrors   *prometheus.CounterVec
	ConfigureLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_relay_sessions",
			Help:      "Number of relay sessions currently streaming.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_session_events_total",
			Help:      "Relay session lifecycle events by type.",
		}, []string{"event"}),
		AudioFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_total",
			Help:      "Audio frames relayed by direction.",
		}, []string{"direction"}),
		AudioBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes relayed by direction.",
		}, []string{"direction"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream agent errors by code.",
		}, []string{"code"}),
		ConfigureLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "configure_latency_ms",
			Help:      "Latency from client accept to upstream agent configured, in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 700, 1000, 2000, 5000},
		}),
	}
}

func (m *Metrics) ObserveConfigureLatency(d time.Duration) {
	m.ConfigureLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
