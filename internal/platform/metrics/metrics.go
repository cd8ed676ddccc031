package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the signaling server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	connectionsTotal  prometheus.Counter
	activeConnections prometheus.Gauge
	activeRooms       prometheus.Gauge
	joinsTotal        *prometheus.CounterVec
	negotiationsTotal *prometheus.CounterVec
	relayedTotal      *prometheus.CounterVec
	droppedTotal      *prometheus.CounterVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	connectionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_connections_total",
		Help: "Total number of signaling connections accepted",
	})
	activeConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_active_connections",
		Help: "Number of live signaling connections",
	})
	activeRooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_active_rooms",
		Help: "Number of rooms in the room table",
	})
	joinsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_joins_total",
		Help: "Successful joins by assigned role",
	}, []string{"role"})
	negotiationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_negotiations_total",
		Help: "Finished transport negotiations by result",
	}, []string{"result"})
	relayedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_relayed_messages_total",
		Help: "Messages delivered to a connection send queue by event",
	}, []string{"event"})
	droppedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_dropped_messages_total",
		Help: "Messages dropped because of a full or closed send queue",
	}, []string{"event"})

	registry.MustRegister(
		connectionsTotal,
		activeConnections,
		activeRooms,
		joinsTotal,
		negotiationsTotal,
		relayedTotal,
		droppedTotal,
	)

	return &Metrics{
		registry:          registry,
		connectionsTotal:  connectionsTotal,
		activeConnections: activeConnections,
		activeRooms:       activeRooms,
		joinsTotal:        joinsTotal,
		negotiationsTotal: negotiationsTotal,
		relayedTotal:      relayedTotal,
		droppedTotal:      droppedTotal,
	}
}

func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
}

func (m *Metrics) IncJoins(role string) {
	if m == nil {
		return
	}
	m.joinsTotal.WithLabelValues(role).Inc()
}

// IncNegotiations counts a finished negotiation; result is "connected" or a failure code.
func (m *Metrics) IncNegotiations(result string) {
	if m == nil {
		return
	}
	m.negotiationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRelayed(event string) {
	if m == nil {
		return
	}
	m.relayedTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) IncDropped(event string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveConnections(n int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(n))
}

func (m *Metrics) SetActiveRooms(n int) {
	if m == nil {
		return
	}
	m.activeRooms.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry. updateGauges runs before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
