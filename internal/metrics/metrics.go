package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CandidatesChecked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billwatch_candidates_checked_total",
		Help: "Candidate identifiers processed across all runs",
	})
	CandidateErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billwatch_candidate_errors_total",
		Help: "Per-candidate failures by pipeline stage",
	}, []string{"stage"})
	BriefsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billwatch_briefs_created_total",
		Help: "Impact briefs created",
	})
	FilterDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billwatch_filter_decisions_total",
		Help: "Admission gate outcomes",
	}, []string{"gate", "decision"})
	EngineCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billwatch_engine_call_seconds",
		Help:    "Analysis engine round trip duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "billwatch_fetch_seconds",
		Help:    "Bill page fetch duration",
		Buckets: prometheus.DefBuckets,
	})
)

// Register installs all collectors on the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CandidatesChecked,
		CandidateErrors,
		BriefsCreated,
		FilterDecisions,
		EngineCallDuration,
		FetchDuration,
	)
}
