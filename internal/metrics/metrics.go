// Package metrics holds the Prometheus collectors for the loyalty engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loyalty"

// Registry is the registry every collector below is registered with
var Registry = prometheus.NewRegistry()

var (
	LedgerTransactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_transactions_total",
		Help:      "Ledger entries committed, by type.",
	}, []string{"type"})

	LedgerPoints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_points_total",
		Help:      "Absolute points moved by committed ledger entries, by type.",
	}, []string{"type"})

	TierChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tier_changes_total",
		Help:      "Tier changes caused by ledger entries, by destination tier.",
	}, []string{"tier"})

	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redemptions_total",
		Help:      "Redemption attempts, by outcome code.",
	}, []string{"outcome"})

	ReferralTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_transitions_total",
		Help:      "Referral status transitions, by destination status.",
	}, []string{"status"})

	QueueJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_jobs_total",
		Help:      "Background jobs processed, by queue and result.",
	}, []string{"queue", "result"})

	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

func init() {
	Registry.MustRegister(
		LedgerTransactions,
		LedgerPoints,
		TierChanges,
		Redemptions,
		ReferralTransitions,
		QueueJobs,
		HTTPRequests,
	)
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
