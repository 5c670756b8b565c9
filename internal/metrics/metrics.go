// Package metrics exposes Prometheus collectors for the generation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generations
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomgen_generations_total",
			Help: "Completed generation requests by provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: success|failure
	)
	GenerationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomgen_generation_failures_total",
			Help: "Failed generation requests by error code",
		},
		[]string{"code"},
	)
	GenerationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomgen_generation_duration_seconds",
			Help:    "End to end duration of successful generations",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s..128s
		},
		[]string{"provider"},
	)

	// Provider dispatch
	ProviderAttemptFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomgen_provider_attempt_failures_total",
			Help: "Failed provider attempts by provider, code and retryability",
		},
		[]string{"provider", "code", "retryable"},
	)
	Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomgen_fallbacks_total",
			Help: "Fallback transitions between providers",
		},
		[]string{"from", "to"},
	)

	// Cost
	AdmissionRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomgen_admission_rejections_total",
			Help: "Requests rejected by the cost guard",
		},
	)
	CostUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomgen_cost_usd_total",
			Help: "Realized generation cost in USD",
		},
		[]string{"provider"},
	)
	CostOvershoots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomgen_cost_overshoots_total",
			Help: "Generations whose realized cost exceeded the reservation",
		},
	)

	// Storage ops
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomgen_store_ops_total",
			Help: "Ledger, cache and image storage operations",
		},
		[]string{"backend", "op"},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomgen_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		Generations,
		GenerationFailures,
		GenerationDurationSeconds,
		ProviderAttemptFailures,
		Fallbacks,
		AdmissionRejections,
		CostUSD,
		CostOvershoots,
		StoreOps,
		Errors,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncGeneration(provider, outcome string) {
	Generations.WithLabelValues(provider, outcome).Inc()
}

func IncGenerationFailure(code string) {
	GenerationFailures.WithLabelValues(code).Inc()
}

func ObserveGenerationDuration(provider string, d time.Duration) {
	GenerationDurationSeconds.WithLabelValues(provider).Observe(d.Seconds())
}

func IncProviderAttemptFailure(provider, code string, retryable bool) {
	label := "false"
	if retryable {
		label = "true"
	}
	ProviderAttemptFailures.WithLabelValues(provider, code, label).Inc()
}

func IncFallback(from, to string) {
	Fallbacks.WithLabelValues(from, to).Inc()
}

func IncAdmissionRejection() {
	AdmissionRejections.Inc()
}

func AddCost(provider string, usd float64) {
	if usd <= 0 {
		return
	}
	CostUSD.WithLabelValues(provider).Add(usd)
}

func IncCostOvershoot() {
	CostOvershoots.Inc()
}

func IncStoreOp(backend, op string) {
	StoreOps.WithLabelValues(backend, op).Inc()
}

func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
