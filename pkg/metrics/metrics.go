package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelayConnections tracks registered relay sessions by role (agent|user).
	RelayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "handoff_relay_connections",
			Help: "Number of live relay sessions",
		},
		[]string{"role"},
	)

	// RelayAdmissions counts connection admission outcomes (accepted|rejected|unauthorized).
	RelayAdmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_relay_admissions_total",
			Help: "Total number of relay connection admission attempts",
		},
		[]string{"result"},
	)

	// RelayEnvelopes counts inbound envelopes by type and outcome.
	RelayEnvelopes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_relay_envelopes_total",
			Help: "Total number of inbound relay envelopes",
		},
		[]string{"type", "result"},
	)

	// RelayDeliveryFailures counts recipients skipped during fan-out.
	RelayDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handoff_relay_delivery_failures_total",
			Help: "Total number of skipped relay deliveries",
		},
	)

	// RelayTakeovers counts user sessions replaced by a newer connection.
	RelayTakeovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handoff_relay_takeovers_total",
			Help: "Total number of replaced relay sessions",
		},
	)

	// PersistLatency measures persistence adapter calls made before broadcast.
	PersistLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handoff_relay_persist_latency_seconds",
			Help:    "Relay persistence latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handoff_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
