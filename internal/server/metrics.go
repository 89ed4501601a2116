// Package server exposes Prometheus metrics for the hub as an Events sink.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the hub's Prometheus collectors and implements Events.
type Metrics struct {
	registry *prometheus.Registry

	PeersConnected    prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	DisconnectsTotal  *prometheus.CounterVec
	HandshakeFailures prometheus.Counter
	AcceptErrors      prometheus.Counter
	MessagesReceived  prometheus.Counter
	MessageBytes      prometheus.Histogram
	DeliveriesTotal   prometheus.Counter
	DeliveriesDropped prometheus.Counter
}

// NewMetrics registers the hub collectors, plus Go runtime and process
// collectors, on a fresh registry under the given namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PeersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_connected",
			Help:      "Number of peers currently registered",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of peers registered after a successful upgrade",
		}),
		DisconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Total number of peer terminations by kind",
		}, []string{"kind"}),
		HandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Total number of rejected WebSocket upgrades",
		}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Total number of failed accept calls",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound messages accepted for broadcast",
		}),
		MessageBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_bytes",
			Help:      "Size of inbound messages in bytes",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		DeliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of messages enqueued to recipients",
		}),
		DeliveriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Total number of deliveries dropped because the recipient was closing",
		}),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for gathering in tests and for
// registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Listening(string) {}

func (m *Metrics) AcceptFailed(error) {
	m.AcceptErrors.Inc()
}

func (m *Metrics) HandshakeFailed(string, error) {
	m.HandshakeFailures.Inc()
}

func (m *Metrics) PeerJoined(PeerID, string, int) {
	m.ConnectionsTotal.Inc()
	m.PeersConnected.Inc()
}

func (m *Metrics) PeerLeft(_ PeerID, _ string, cause error, _ int) {
	kind := "error"
	if isGracefulDisconnect(cause) {
		kind = "clean"
	}
	m.DisconnectsTotal.WithLabelValues(kind).Inc()
	m.PeersConnected.Dec()
}

func (m *Metrics) MessageReceived(_ PeerID, msg Message) {
	m.MessagesReceived.Inc()
	m.MessageBytes.Observe(float64(len(msg.Data)))
}

func (m *Metrics) Broadcast(_ PeerID, delivered, dropped int) {
	m.DeliveriesTotal.Add(float64(delivered))
	m.DeliveriesDropped.Add(float64(dropped))
}
