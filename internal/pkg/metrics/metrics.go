package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthorizedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_authorized_calls_total",
		Help: "Calls submitted through the smart account, by function and outcome",
	}, []string{"function", "signer", "outcome"})

	ClassifiedFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_classified_failures_total",
		Help: "Call failures by classified cause",
	}, []string{"cause"})

	DepositConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_deposit_confirmations_total",
		Help: "Deposit confirmation polling outcomes",
	}, []string{"outcome"})

	PendingWithdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_bot_pending_withdrawals_total",
		Help: "Bot pending-withdrawal requests handled by the bridge",
	}, []string{"outcome"})

	BotTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_bot_transitions_total",
		Help: "Bot state machine transitions observed by the bridge",
	}, []string{"to"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessiongate_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
