package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds prometheus.ObserverVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of live websocket connections.",
		},
	)

	MessagesRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_relayed_total",
			Help: "Messages accepted by the delivery engine, by outcome.",
		},
		[]string{"outcome"}, // delivered, queued, rejected
	)

	PresenceBroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_broadcasts_total",
			Help: "Presence state broadcasts fanned out to contacts.",
		},
		[]string{"state"}, // online, offline
	)

	PowVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pow_verifications_total",
			Help: "Proof-of-work verification attempts, by outcome.",
		},
		[]string{"outcome"}, // success, failure
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Account registrations, by outcome.",
		},
		[]string{"outcome"}, // success, failure
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		WSConnectionsActive,
		MessagesRelayedTotal,
		PresenceBroadcastsTotal,
		PowVerificationsTotal,
		RegistrationsTotal,
	)
}
