package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by request counters.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	ClaimsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimval_claims_extracted_total",
		Help: "Claims extracted from research narratives, by decoding strategy",
	}, []string{"strategy"})

	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimval_validations_total",
		Help: "Claim validations, by claim type and final status",
	}, []string{"claim_type", "status"})

	TrafficQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claimval_traffic_query_duration_seconds",
		Help:    "Duration of queries against the vessel traffic database",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"claim_type"})

	TrafficQueryRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claimval_traffic_query_rows",
		Help:    "Rows returned per traffic query",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})

	CompletionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claimval_llm_request_duration_seconds",
		Help:    "Duration of text completion requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	CompletionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimval_llm_requests_total",
		Help: "Text completion requests, by model and status",
	}, []string{"model", "status"})

	CompletionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claimval_llm_cache_hits_total",
		Help: "Completions served from the in-memory cache",
	})

	ThemeConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claimval_last_theme_confidence",
		Help: "Overall confidence of the most recently validated theme",
	})

	ValidationRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claimval_validation_run_duration_seconds",
		Help:    "Duration of a full theme validation run",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	BulkRevalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimval_bulk_revalidations_total",
		Help: "Claims revalidated by the bulk job, by status",
	}, []string{"status"})
)
