// Package metrics holds the process-wide Prometheus registry and the HTTP
// surface serving /metrics and /health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Decisions counts emitted trade decisions by path and side.
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_decisions_total",
			Help: "Trade decisions emitted, by trigger path and side",
		},
		[]string{"path", "side"},
	)

	// RejectedValidation counts validation rejections by reason.
	RejectedValidation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_rejected_validation_total",
			Help: "Decisions rejected by pre-trade validation, by reason",
		},
		[]string{"reason"},
	)

	// GuardrailBlocks counts admission blocks by rule.
	GuardrailBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_guardrail_blocks_total",
			Help: "Decisions blocked by guardrails, by rule",
		},
		[]string{"rule"},
	)

	// ParseErrors counts dropped malformed packets and chain events.
	ParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_parse_errors_total",
			Help: "Malformed messages dropped, by source",
		},
		[]string{"source"},
	)

	// Outcomes counts closed trades by result.
	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_trade_outcomes_total",
			Help: "Closed trades by outcome",
		},
		[]string{"outcome"},
	)

	// DecisionLatency observes detect→send latency per decision.
	DecisionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_decision_latency_seconds",
			Help:    "Latency from advice receipt to decision send",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// DBQueryLatency observes store read latency.
	DBQueryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_db_query_latency_seconds",
			Help:    "Store query latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// SolPriceUSD gauges the current oracle price.
	SolPriceUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_sol_price_usd",
			Help: "Current SOL/USD price",
		},
	)

	// ActivePositions gauges open positions per service.
	ActivePositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_active_positions",
			Help: "Open positions per service",
		},
		[]string{"service"},
	)

	// WatchedSignatures gauges the watcher's live signature count.
	WatchedSignatures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_watched_signatures",
			Help: "Signatures currently watched for confirmation",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Decisions, RejectedValidation, GuardrailBlocks, ParseErrors, Outcomes,
		DecisionLatency, DBQueryLatency,
		SolPriceUSD, ActivePositions, WatchedSignatures,
	)
}

// ObserveDBQuery is the storage-layer latency hook.
func ObserveDBQuery(seconds float64) { DBQueryLatency.Observe(seconds) }
