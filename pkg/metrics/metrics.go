package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	TestCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_cycles_total",
		Help: "The total number of vault test cycles by outcome",
	}, []string{"network", "outcome"})

	TestCyclesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_cycles_skipped_total",
		Help: "Vault test cycles that were not started",
	}, []string{"network", "reason"})

	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tester_cycle_duration_seconds",
		Help:    "Time taken by a full issue and redeem cycle",
		Buckets: prometheus.ExponentialBuckets(30, 2, 10), // Start at 30s with 10 buckets doubling in size
	}, []string{"network"})

	StagesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_stages_reached_total",
		Help: "The number of times each test stage was reached",
	}, []string{"network", "stage"})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tester_active_runs",
		Help: "The number of vault test runs currently in flight",
	})

	TestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_errors_total",
		Help: "Total number of test errors by kind",
	}, []string{"network", "kind"})

	ChainSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_chain_submissions_total",
		Help: "Extrinsic submissions to the ledger by result",
	}, []string{"network", "extrinsic", "result"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_reconnects_total",
		Help: "Ledger reconnects after stale session errors",
	}, []string{"network"})

	PendingWaiters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tester_pending_waiters",
		Help: "Confirmation waiters currently registered",
	}, []string{"network", "kind"})

	WaiterTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_waiter_timeouts_total",
		Help: "Confirmation waits that hit their deadline",
	}, []string{"network", "kind"})

	StellarSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_stellar_submissions_total",
		Help: "Stellar payment submissions by result",
	}, []string{"horizon", "result"})

	StellarRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_stellar_retries_total",
		Help: "Stellar submission retries by action",
	}, []string{"horizon", "action"})

	StellarFee = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tester_stellar_fee_stroops",
		Help: "Base fee used for the last Stellar payment",
	}, []string{"horizon"})

	StellarBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tester_stellar_balance",
		Help: "Tester account balance by asset",
	}, []string{"horizon", "asset"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_notifications_total",
		Help: "Operator notifications by delivery status",
	}, []string{"status"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tester_circuit_breaker_trips_total",
		Help: "Number of times a network circuit breaker tripped",
	}, []string{"network"})
)
