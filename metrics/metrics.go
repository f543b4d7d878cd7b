// Package metrics exposes the receiver's Prometheus instrumentation:
// queue depth, drop counters, tuner-failure session terminations, scaler ratio and FEC
// recovery stats, registered the same promauto way as the rest of the
// corpus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric collector the core touches during a tick.
// One Registry is shared by all sessions; per-sender values carry a
// "session" label.
type Registry struct {
	QueueDepth        *prometheus.GaugeVec
	QueueDropped      *prometheus.GaugeVec
	SessionsTerminated *prometheus.CounterVec
	ScalerRatio       *prometheus.GaugeVec
	FECRecovered    *prometheus.GaugeVec
	FECLost         *prometheus.GaugeVec
	LiveSessions    prometheus.Gauge
	SessionsDropped prometheus.Counter
	TickDuration    prometheus.Histogram
}

// NewRegistry builds and registers every collector against the default
// Prometheus registerer.
func NewRegistry() *Registry {
	return &Registry{
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audioreceiver_queue_depth",
				Help: "Current number of packets buffered in a session's packet queue.",
			},
			[]string{"session"},
		),
		QueueDropped: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audioreceiver_queue_dropped_total",
				Help: "Total packets dropped from a session's packet queue for being full (oldest-drop policy), since session creation.",
			},
			[]string{"session"},
		),
		SessionsTerminated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audioreceiver_sessions_terminated_total",
				Help: "Total sessions torn down because a tuner (watchdog or scaler) reported failure.",
			},
			[]string{"session"},
		),
		ScalerRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audioreceiver_scaler_ratio",
				Help: "Current resampling ratio applied by a session's clock-drift scaler.",
			},
			[]string{"session"},
		),
		FECRecovered: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audioreceiver_fec_recovered_total",
				Help: "Total packets recovered by FEC block decoding, since session creation.",
			},
			[]string{"session"},
		),
		FECLost: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audioreceiver_fec_lost_total",
				Help: "Total packets unrecoverable after FEC block decoding and emitted as gaps, since session creation.",
			},
			[]string{"session"},
		),
		LiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "audioreceiver_live_sessions",
				Help: "Current number of live sessions tracked by the session manager.",
			},
		),
		SessionsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "audioreceiver_sessions_dropped_over_cap_total",
				Help: "Total datagrams dropped because max_sessions was reached.",
			},
		),
		TickDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audioreceiver_tick_duration_seconds",
				Help:    "Wall-clock time spent producing one output buffer.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Handler returns the promhttp scrape handler to mount on the
// configured listen address.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
