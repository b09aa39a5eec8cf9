package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sketchrelay"

// Metrics owns its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Connections         prometheus.Gauge
	Rooms               prometheus.Gauge
	InboundEvents       *prometheus.CounterVec
	DroppedSends        prometheus.Counter
	HeartbeatEvictions  prometheus.Counter
	AdmissionRejections *prometheus.CounterVec
	ChatPersistFailures prometheus.Counter
	ChatMessagesWritten prometheus.Counter
	CanvasSaves         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live websocket connections on this instance.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one local member.",
		}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Client events received, by type.",
		}, []string{"type"}),
		DroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_sends_total",
			Help:      "Outbound messages dropped because a peer's send buffer was full or closed.",
		}),
		HeartbeatEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_evictions_total",
			Help:      "Connections force-closed after missing liveness probes.",
		}),
		AdmissionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Connections refused at admission, by reason.",
		}, []string{"reason"}),
		ChatPersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_persist_failures_total",
			Help:      "Chat messages that could not be handed to or written by the store.",
		}),
		ChatMessagesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_written_total",
			Help:      "Chat messages durably written.",
		}),
		CanvasSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "canvas_saves_total",
			Help:      "Canvas snapshot saves, by result.",
		}, []string{"result"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.Rooms,
		m.InboundEvents,
		m.DroppedSends,
		m.HeartbeatEvictions,
		m.AdmissionRejections,
		m.ChatPersistFailures,
		m.ChatMessagesWritten,
		m.CanvasSaves,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
