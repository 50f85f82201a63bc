// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "pnlbot"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Loop metrics
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	ResyncsTotal       *prometheus.CounterVec
	LastCycleTimestamp prometheus.Gauge
	OpenPositions      prometheus.Gauge

	// Ledger metrics
	EventsIngested   *prometheus.CounterVec
	SyncFailures     prometheus.Counter
	TransactionsSeen prometheus.Counter

	// Trading metrics
	SignalsTotal          *prometheus.CounterVec
	TradesTotal           *prometheus.CounterVec
	ExecutionAttempts     *prometheus.CounterVec
	GovernorSuppressions  prometheus.Counter
	UnrealizedPnLPct      *prometheus.GaugeVec
	ReconcileDriftedMints prometheus.Gauge

	// Latency metrics
	RPCCallLatency   *prometheus.HistogramVec
	RPCCallErrors    *prometheus.CounterVec
	PriceLookupError prometheus.Counter
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "loop",
			Name:      "cycles_total",
			Help:      "Total number of trading cycles by status",
		}, []string{"status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "loop",
			Name:      "cycle_duration_seconds",
			Help:      "Trading cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ResyncsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "loop",
			Name:      "resyncs_total",
			Help:      "Total number of ledger resyncs by reason",
		}, []string{"reason"}),
		LastCycleTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "health",
			Name:      "last_cycle_timestamp",
			Help:      "Unix timestamp of the last completed cycle",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "open_positions",
			Help:      "Number of open non-base positions",
		}),

		EventsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "events_ingested_total",
			Help:      "Total number of ledger events applied by kind",
		}, []string{"kind"}),
		SyncFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "sync_failures_total",
			Help:      "Total number of transactions that could not be fetched or applied",
		}),
		TransactionsSeen: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "transactions_seen_total",
			Help:      "Total number of wallet transactions processed by sync",
		}),

		SignalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "strategy",
			Name:      "signals_total",
			Help:      "Total number of SELL signals by trigger",
		}, []string{"trigger"}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "execution",
			Name:      "trades_total",
			Help:      "Total number of executions by outcome",
		}, []string{"outcome"}),
		ExecutionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "execution",
			Name:      "attempts_total",
			Help:      "Total number of quote/submit attempts by slippage tier",
		}, []string{"slippage_bps"}),
		GovernorSuppressions: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "loop",
			Name:      "governor_suppressions_total",
			Help:      "Total number of signals suppressed by the hourly trade cap",
		}),
		UnrealizedPnLPct: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "valuation",
			Name:      "unrealized_pnl_pct",
			Help:      "Unrealized PnL percent per mint at the last cycle",
		}, []string{"mint"}),
		ReconcileDriftedMints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "reconcile",
			Name:      "drifted_mints",
			Help:      "Number of mints whose ledger quantity drifted from the wallet",
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),
		PriceLookupError: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "valuation",
			Name:      "price_lookup_errors_total",
			Help:      "Total number of failed spot price lookups",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// RecordCycle records a finished trading cycle.
func RecordCycle(status string, took time.Duration, openPositions int) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(took.Seconds())
	DefaultMetrics.LastCycleTimestamp.SetToCurrentTime()
	DefaultMetrics.OpenPositions.Set(float64(openPositions))
}

// RecordResync records a ledger resync.
func RecordResync(reason string) {
	DefaultMetrics.ResyncsTotal.WithLabelValues(reason).Inc()
}

// RecordEventApplied records an applied ledger event.
func RecordEventApplied(kind string) {
	DefaultMetrics.EventsIngested.WithLabelValues(kind).Inc()
}

// RecordSyncTransaction records one processed transaction.
func RecordSyncTransaction(failed bool) {
	DefaultMetrics.TransactionsSeen.Inc()
	if failed {
		DefaultMetrics.SyncFailures.Inc()
	}
}

// RecordSignal records a SELL signal.
func RecordSignal(trigger string) {
	DefaultMetrics.SignalsTotal.WithLabelValues(trigger).Inc()
}

// RecordTrade records an execution outcome.
func RecordTrade(outcome string) {
	DefaultMetrics.TradesTotal.WithLabelValues(outcome).Inc()
}

// RecordExecutionAttempt records one quote/submit attempt.
func RecordExecutionAttempt(slippageBps string) {
	DefaultMetrics.ExecutionAttempts.WithLabelValues(slippageBps).Inc()
}

// RecordGovernorSuppression records a signal blocked by the trade cap.
func RecordGovernorSuppression() {
	DefaultMetrics.GovernorSuppressions.Inc()
}

// UpdateUnrealizedPnL sets the unrealized PnL percent of mint.
func UpdateUnrealizedPnL(mint string, pct float64) {
	DefaultMetrics.UnrealizedPnLPct.WithLabelValues(mint).Set(pct)
}

// UpdateDriftedMints sets the number of drifted mints from the last reconcile.
func UpdateDriftedMints(n int) {
	DefaultMetrics.ReconcileDriftedMints.Set(float64(n))
}

// RecordRPCCall records RPC call latency and failures.
func RecordRPCCall(method string, took time.Duration, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(took.Seconds())
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordPriceLookupError records a failed spot price lookup.
func RecordPriceLookupError() {
	DefaultMetrics.PriceLookupError.Inc()
}
