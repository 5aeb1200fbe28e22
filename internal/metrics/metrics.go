package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "synth"

var (
	RequestsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_submitted_total",
			Help:      "Total number of generation requests accepted.",
		},
		[]string{"family", "mode"},
	)

	RequestsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_finished_total",
			Help:      "Total number of generation requests that reached a terminal status.",
		},
		[]string{"family", "mode", "status"},
	)

	GenerationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock time from processing start to terminal status (seconds).",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
		[]string{"family", "mode", "status"},
	)

	TrialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Total number of training trials, labeled by outcome.",
		},
		[]string{"family", "status"},
	)

	TrialDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_duration_seconds",
			Help:      "Duration of one train-sample-score trial (seconds).",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
		[]string{"family"},
	)

	SearchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_runs_total",
			Help:      "Total number of hyperparameter searches, labeled by method and final status.",
		},
		[]string{"method", "status"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of searches that fell back to default hyperparameters.",
		},
		[]string{"family"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of webhook deliveries, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests delayed or rejected by a rate limit.",
		},
		[]string{"scope", "bucket"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsSubmittedTotal,
		RequestsFinishedTotal,
		GenerationDurationSeconds,
		TrialsTotal,
		TrialDurationSeconds,
		SearchRunsTotal,
		FallbacksTotal,
		WebhookDeliveriesTotal,
		RateLimitHitsTotal,
	)
}
