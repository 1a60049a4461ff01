package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts billing HTTP activity. A nil *Metrics records nothing.
type Metrics struct {
	webhookEvents *prometheus.CounterVec
	checkouts     *prometheus.CounterVec
	portals       *prometheus.CounterVec
}

// NewMetrics registers the billing counters with reg, or with the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saasdash",
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Billing webhook deliveries by provider event type and outcome",
		}, []string{"type", "outcome"}),
		checkouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saasdash",
			Subsystem: "billing",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session requests by result",
		}, []string{"result"}),
		portals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saasdash",
			Subsystem: "billing",
			Name:      "portal_sessions_total",
			Help:      "Customer portal session requests by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) webhook(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) checkout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) portal(result string) {
	if m == nil {
		return
	}
	m.portals.WithLabelValues(result).Inc()
}
