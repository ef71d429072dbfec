package multisig

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	eventProposed = "proposed"
	eventApproved = "approved"
	eventExecuted = "executed"
	eventReverted = "reverted"
	eventFailed   = "failed"
	eventExpired  = "expired"
	eventEvicted  = "evicted"
)

var (
	proposalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multisig",
		Name:      "proposals_total",
		Help:      "Number of proposal state changes by event.",
	}, []string{"event"})

	executionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "multisig",
		Name:      "execution_seconds",
		Help:      "Time the ledger took to execute instructions.",
		Buckets:   prometheus.DefBuckets,
	})
)
