package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockrisk"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	IngestedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_rows_total",
		Help:      "Ledger rows written by ingestion pipelines.",
	}, []string{"pipeline"})

	FileJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_file_jobs_total",
		Help:      "Ingestion file jobs by final status.",
	}, []string{"pipeline", "status"})

	Evaluations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "risk_evaluation_duration_seconds",
		Help:      "Time spent loading rows and scoring groups for one request.",
		Buckets:   prometheus.DefBuckets,
	})

	EvaluatedGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "risk_evaluated_groups",
		Help:      "Groups produced by the most recent risk evaluation.",
	})

	HighRiskGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "risk_high_risk_groups",
		Help:      "HIGH-risk groups in the most recent risk evaluation.",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
