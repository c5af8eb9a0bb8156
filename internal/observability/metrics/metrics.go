package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for dialogue turns.
type ConversationMetrics struct {
	turnsTotal     *prometheus.CounterVec
	actionsTotal   *prometheus.CounterVec
	turnLatency    *prometheus.HistogramVec
	bookingsTotal  prometheus.Counter
	activeSessions prometheus.Gauge
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total dialogue turns processed",
		}, []string{"outcome"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "dialogue",
			Name:      "action_invocations_total",
			Help:      "Total action invocations by the model",
		}, []string{"action", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of one dialogue turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		bookingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Total appointments booked through the assistant",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "dialogue",
			Name:      "active_sessions",
			Help:      "Sessions currently in a turn",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.actionsTotal, m.turnLatency, m.bookingsTotal, m.activeSessions)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *ConversationMetrics) ObserveAction(action, status string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(action, status).Inc()
}

func (m *ConversationMetrics) ObserveBooking() {
	if m == nil {
		return
	}
	m.bookingsTotal.Inc()
}

func (m *ConversationMetrics) TurnStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *ConversationMetrics) TurnFinished() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
