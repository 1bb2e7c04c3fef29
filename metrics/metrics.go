// Package metrics provides Prometheus metrics for the HTTP server and the models.
//
// HTTP:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Inference:
//   - predictions_total: Counter with endpoint and outcome labels
//   - prediction_duration_seconds: Histogram of pipeline latency per record
//   - effectiveness_rating: Histogram of predicted ratings
//   - side_effect_risk_total: Counter with risk label
//   - batch_records: Histogram of records per batch request
//   - artifact_refresh_total: Counter with result label
//   - artifact_loaded_timestamp_seconds: Gauge set when a bundle is swapped in
//
// All metrics are registered with the Prometheus default registry during package
// initialization.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prediction outcomes
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Refresh results
const (
	RefreshSwapped   = "swapped"
	RefreshUnchanged = "unchanged"
	RefreshFailed    = "failed"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Records scored, by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	PredictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prediction_duration_seconds",
			Help:    "Time to vectorise and score one record",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		},
	)

	EffectivenessRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "effectiveness_rating",
			Help:    "Predicted effectiveness ratings",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	SideEffectRiskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_risk_total",
			Help: "Side effect predictions by risk",
		},
		[]string{"risk"},
	)

	BatchRecords = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_records",
			Help:    "Records per batch request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	ArtifactRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_refresh_total",
			Help: "Artifact refresh attempts by result",
		},
		[]string{"result"},
	)

	ArtifactLoadedTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "artifact_loaded_timestamp_seconds",
			Help: "Unix time the serving artifacts were loaded",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(PredictionsTotal)
	prometheus.MustRegister(PredictionDuration)
	prometheus.MustRegister(EffectivenessRating)
	prometheus.MustRegister(SideEffectRiskTotal)
	prometheus.MustRegister(BatchRecords)
	prometheus.MustRegister(ArtifactRefreshTotal)
	prometheus.MustRegister(ArtifactLoadedTimestamp)
}

// ObservePrediction records a successful prediction
func ObservePrediction(endpoint string, rating float64, risk bool, took time.Duration) {
	PredictionsTotal.WithLabelValues(endpoint, OutcomeOK).Inc()
	PredictionDuration.Observe(took.Seconds())
	EffectivenessRating.Observe(rating)
	SideEffectRiskTotal.WithLabelValues(strconv.FormatBool(risk)).Inc()
}

// ObserveFailure records a record that could not be scored
func ObserveFailure(endpoint, outcome string) {
	PredictionsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveFailures records n records that could not be scored
func ObserveFailures(endpoint, outcome string, n int) {
	if n > 0 {
		PredictionsTotal.WithLabelValues(endpoint, outcome).Add(float64(n))
	}
}
