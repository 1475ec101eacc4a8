package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pagesync", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pagesync", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	ActiveHubs = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pagesync", Name: "active_hubs", Help: "Number of documents with a running hub."},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pagesync", Name: "active_sessions", Help: "Number of connected realtime sessions."},
	)
	HubMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pagesync", Name: "hub_messages_total", Help: "Realtime messages handled by direction and type."},
		[]string{"direction", "type"},
	)
	RejectedMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pagesync", Name: "rejected_mutations_total", Help: "Mutations refused by the hub by reason."},
		[]string{"reason"},
	)
	DroppedSessions = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "pagesync", Name: "dropped_sessions_total", Help: "Sessions disconnected because their outbound queue was full."},
	)
	VersionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "pagesync", Name: "versions_created_total", Help: "Version snapshots created."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ActiveHubs)
	reg.MustRegister(ActiveSessions)
	reg.MustRegister(HubMessages)
	reg.MustRegister(RejectedMutations)
	reg.MustRegister(DroppedSessions)
	reg.MustRegister(VersionsCreated)
}
