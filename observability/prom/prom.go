// Package prom exports relay metrics to Prometheus.
package prom

import (
	"net/http"
	"time"

	"github.com/filebeam/relay/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RelayObserver exports relay metrics to Prometheus.
type RelayObserver struct {
	connGauge         prometheus.Gauge
	sessionGauge      prometheus.Gauge
	attachTotal       *prometheus.CounterVec
	closeTotal        *prometheus.CounterVec
	rendezvousLatency prometheus.Histogram
	bytesRelayed      prometheus.Counter
	chatRelayed       prometheus.Counter
}

// NewRelayObserver registers relay metrics on the registry.
func NewRelayObserver(reg *prometheus.Registry) *RelayObserver {
	o := &RelayObserver{
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filebeam_relay_connections",
			Help: "Current websocket connection count.",
		}),
		sessionGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filebeam_relay_sessions",
			Help: "Current session count in the registry.",
		}),
		attachTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filebeam_relay_attach_total",
			Help: "Connection attach attempts by result and reason.",
		}, []string{"result", "reason"}),
		closeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filebeam_relay_session_close_total",
			Help: "Session teardowns by reason.",
		}, []string{"reason"}),
		rendezvousLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "filebeam_relay_rendezvous_latency_seconds",
			Help:    "Latency from sender attach to receiver attach.",
			Buckets: prometheus.DefBuckets,
		}),
		bytesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filebeam_relay_bytes_total",
			Help: "Total payload bytes forwarded between endpoints.",
		}),
		chatRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filebeam_relay_chat_messages_total",
			Help: "Chat messages appended to session logs.",
		}),
	}
	reg.MustRegister(
		o.connGauge,
		o.sessionGauge,
		o.attachTotal,
		o.closeTotal,
		o.rendezvousLatency,
		o.bytesRelayed,
		o.chatRelayed,
	)
	return o
}

func (o *RelayObserver) ConnCount(n int64) {
	o.connGauge.Set(float64(n))
}

func (o *RelayObserver) SessionCount(n int) {
	o.sessionGauge.Set(float64(n))
}

func (o *RelayObserver) Attach(result observability.AttachResult, reason observability.AttachReason) {
	o.attachTotal.WithLabelValues(string(result), string(reason)).Inc()
}

func (o *RelayObserver) Close(reason observability.CloseReason) {
	o.closeTotal.WithLabelValues(string(reason)).Inc()
}

func (o *RelayObserver) RendezvousLatency(d time.Duration) {
	o.rendezvousLatency.Observe(d.Seconds())
}

func (o *RelayObserver) BytesRelayed(n int) {
	o.bytesRelayed.Add(float64(n))
}

func (o *RelayObserver) ChatRelayed() {
	o.chatRelayed.Inc()
}
