// Package metrics exposes prometheus instrumentation for the analysis pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convolens",
			Name:      "gateway_calls_total",
			Help:      "Model gateway calls by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)
	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "convolens",
			Name:      "gateway_call_duration_seconds",
			Help:      "Model gateway call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"purpose"},
	)
	analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convolens",
			Name:      "analyses_total",
			Help:      "Completed analyses by kind and status (ok, degraded, demo).",
		},
		[]string{"kind", "status"},
	)
	parseStrategies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convolens",
			Name:      "parse_strategy_total",
			Help:      "Which parse strategy produced an analyzer result.",
		},
		[]string{"kind", "strategy"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convolens",
			Name:      "messages_appended_total",
			Help:      "Messages appended to conversation stores by role.",
		},
		[]string{"role"},
	)
	flagsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convolens",
			Name:      "flags_raised_total",
			Help:      "Flags merged into conversation stores by category and severity.",
		},
		[]string{"category", "severity"},
	)
)

func init() {
	prometheus.MustRegister(gatewayCalls, gatewayLatency, analyses, parseStrategies, messages, flagsRaised)
}

// ObserveGatewayCall records one gateway round trip.
func ObserveGatewayCall(purpose, outcome string, d time.Duration) {
	gatewayCalls.WithLabelValues(purpose, outcome).Inc()
	gatewayLatency.WithLabelValues(purpose).Observe(d.Seconds())
}

// ObserveAnalysis records a finished analysis.
func ObserveAnalysis(kind, status string) {
	analyses.WithLabelValues(kind, status).Inc()
}

// ObserveParseStrategy records which parse strategy won.
func ObserveParseStrategy(kind, strategy string) {
	parseStrategies.WithLabelValues(kind, strategy).Inc()
}

// ObserveMessage records an appended message.
func ObserveMessage(role string) {
	messages.WithLabelValues(role).Inc()
}

// ObserveFlag records a merged flag.
func ObserveFlag(category, severity string) {
	flagsRaised.WithLabelValues(category, severity).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
