package metrics

import (
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

// RelayMetrics records connection lifecycle and fanout activity in Prometheus.
type RelayMetrics struct {
	connectionsActive   *prometheus.GaugeVec
	connectionsOpened   *prometheus.CounterVec
	connectionsClosed   *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	deliveries          *prometheus.CounterVec
	actionsHandled      *prometheus.CounterVec
}

var _ ports.RelayMetrics = (*RelayMetrics)(nil)

// New creates the relay collectors and registers them on reg.
func New(reg prometheus.Registerer) (*RelayMetrics, error) {
	m := &RelayMetrics{
		connectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Live connections per trust domain.",
		}, []string{"domain"}),
		connectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Connections admitted per trust domain.",
		}, []string{"domain"}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Connections torn down per trust domain and reason.",
		}, []string{"domain", "reason"}),
		connectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Handshakes rejected per error code.",
		}, []string{"code"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the fanout engine per type.",
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_deliveries_total",
			Help:      "Events queued on connections per type.",
		}, []string{"type"}),
		actionsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_handled_total",
			Help:      "Inbound actions per type and outcome code.",
		}, []string{"action", "code"}),
	}

	collectors := []prometheus.Collector{
		m.connectionsActive,
		m.connectionsOpened,
		m.connectionsClosed,
		m.connectionsRejected,
		m.eventsPublished,
		m.deliveries,
		m.actionsHandled,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *RelayMetrics) ConnectionOpened(d domain.Domain) {
	m.connectionsOpened.WithLabelValues(string(d)).Inc()
	m.connectionsActive.WithLabelValues(string(d)).Inc()
}

func (m *RelayMetrics) ConnectionClosed(d domain.Domain, reason string) {
	m.connectionsClosed.WithLabelValues(string(d), reason).Inc()
	m.connectionsActive.WithLabelValues(string(d)).Dec()
}

func (m *RelayMetrics) ConnectionRejected(code string) {
	m.connectionsRejected.WithLabelValues(code).Inc()
}

func (m *RelayMetrics) EventPublished(eventType domain.EventType, deliveries int) {
	m.eventsPublished.WithLabelValues(string(eventType)).Inc()
	m.deliveries.WithLabelValues(string(eventType)).Add(float64(deliveries))
}

// ActionHandled records one inbound action. Unknown action types collapse
// into a single label so clients cannot grow the series set.
func (m *RelayMetrics) ActionHandled(action domain.ActionType, code string) {
	label := string(action)
	if !action.IsKnown() {
		label = "unknown"
	}
	m.actionsHandled.WithLabelValues(label, code).Inc()
}
