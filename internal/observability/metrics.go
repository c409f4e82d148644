package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the assistant core.
type Metrics struct {
	SessionConnected   prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	LiveChunks         *prometheus.CounterVec
	RaceOutcomes       *prometheus.CounterVec
	ResponseCache      *prometheus.CounterVec
	ClassifierCache    *prometheus.CounterVec
	SourceErrors       *prometheus.CounterVec
	AttentionPublished prometheus.Gauge
	AttentionRefresh   prometheus.Histogram
	TurnLatency        prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SessionConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_session_connected",
			Help:      "Whether a live model session is currently active (0 or 1).",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_session_events_total",
			Help:      "Live session lifecycle events by type.",
		}, []string{"event"}),
		LiveChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_chunks_total",
			Help:      "Response chunks received from the live session by kind.",
		}, []string{"kind"}),
		RaceOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_race_outcomes_total",
			Help:      "Which path answered a text turn.",
		}, []string{"winner"}),
		ResponseCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_events_total",
			Help:      "Response cache activity by event.",
		}, []string{"event"}),
		ClassifierCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_cache_events_total",
			Help:      "Intent classifier cache lookups by result.",
		}, []string{"result"}),
		SourceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attention_source_errors_total",
			Help:      "Attention source failures by source.",
		}, []string{"source"}),
		AttentionPublished: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attention_published_items",
			Help:      "Number of items in the published attention list.",
		}),
		AttentionRefresh: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attention_refresh_duration_ms",
			Help:      "Duration of an attention refresh cycle in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_first_response_latency_ms",
			Help:      "Latency from text input to first delivered response in milliseconds.",
			Buckets:   []float64{5, 25, 100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveAttentionRefresh(d time.Duration) {
	m.AttentionRefresh.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
