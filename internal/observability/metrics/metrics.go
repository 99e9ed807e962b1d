package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "incident_"

	// Outcomes for inbound gateway events.
	OutcomeAccepted     = "accepted"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRateLimited  = "rate_limited"
	OutcomeInvalid      = "invalid"
)

var (
	registerOnce sync.Once

	gatewayConnections prometheus.Gauge
	gatewayEvents      *prometheus.CounterVec
	gatewayBroadcasts  *prometheus.CounterVec
	rateLimitRejects   *prometheus.CounterVec

	transitionsTotal       *prometheus.CounterVec
	transitionRejects      prometheus.Counter
	persistFailuresTotal   *prometheus.CounterVec
	notificationDispatches *prometheus.CounterVec
)

// Init registers the service metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		gatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "gateway_connections",
			Help: "Currently authenticated gateway connections",
		})
		gatewayEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_events_total",
				Help: "Inbound gateway events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		)
		gatewayBroadcasts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_broadcasts_total",
				Help: "Outbound envelopes fanned out by kind",
			},
			[]string{"kind"},
		)
		rateLimitRejects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_rate_limited_total",
				Help: "Inbound events rejected by the sliding window",
			},
			[]string{"kind"},
		)
		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_transitions_total",
				Help: "Applied incident status transitions",
			},
			[]string{"from", "to"},
		)
		transitionRejects = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "status_transition_rejects_total",
			Help: "Rejected incident status transitions",
		})
		persistFailuresTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_failures_total",
				Help: "Persistence failures after a real-time event was already emitted",
			},
			[]string{"kind"},
		)
		notificationDispatches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notification_dispatches_total",
				Help: "Notification deliveries by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			gatewayConnections, gatewayEvents, gatewayBroadcasts, rateLimitRejects,
			transitionsTotal, transitionRejects, persistFailuresTotal, notificationDispatches,
		)
	})
}

// GatewayConnected increments the live connection gauge.
func GatewayConnected() {
	if gatewayConnections != nil {
		gatewayConnections.Inc()
	}
}

// GatewayDisconnected decrements the live connection gauge.
func GatewayDisconnected() {
	if gatewayConnections != nil {
		gatewayConnections.Dec()
	}
}

// ObserveGatewayEvent counts an inbound event outcome.
func ObserveGatewayEvent(kind, outcome string) {
	if gatewayEvents != nil {
		gatewayEvents.WithLabelValues(kind, outcome).Inc()
	}
	if outcome == OutcomeRateLimited && rateLimitRejects != nil {
		rateLimitRejects.WithLabelValues(kind).Inc()
	}
}

// ObserveBroadcast counts an outbound fan-out.
func ObserveBroadcast(kind string) {
	if gatewayBroadcasts != nil {
		gatewayBroadcasts.WithLabelValues(kind).Inc()
	}
}

// ObserveTransition counts an applied status transition.
func ObserveTransition(from, to string) {
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(from, to).Inc()
	}
}

// ObserveTransitionReject counts a rejected transition.
func ObserveTransitionReject() {
	if transitionRejects != nil {
		transitionRejects.Inc()
	}
}

// ObservePersistFailure counts a write that failed after fan-out.
func ObservePersistFailure(kind string) {
	if persistFailuresTotal != nil {
		persistFailuresTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveNotification counts a delivery attempt result.
func ObserveNotification(result string) {
	if notificationDispatches != nil {
		notificationDispatches.WithLabelValues(result).Inc()
	}
}
