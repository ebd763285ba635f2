package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level counters scraped via the metrics side-server.
var (
	RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatelink",
		Name:      "redemptions_total",
		Help:      "Successful token redemptions.",
	})

	RedemptionMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatelink",
		Name:      "redemption_misses_total",
		Help:      "Redemption attempts for unknown or revoked tokens.",
	})

	GateDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatelink",
		Name:      "gate_denials_total",
		Help:      "Membership gate evaluations that denied access.",
	})

	BroadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatelink",
		Name:      "broadcast_deliveries_total",
		Help:      "Broadcast delivery attempts by result.",
	}, []string{"result"})
)
