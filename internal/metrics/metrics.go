// Package metrics provides the centralized Prometheus metrics registry for the calibration service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clever_calibrator"

var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RefreshesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Total number of successful calibration refreshes",
	})
	RefreshFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_failures_total",
		Help:      "Total number of calibration refreshes that gave up",
	})
	HistoryFetchRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_fetch_retries_total",
		Help:      "Total number of retried prediction history fetches",
	})
	HistoryCacheRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_cache_requests_total",
		Help:      "Prediction history cache lookups by result",
	}, []string{"result"})
	PredictionsSettledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_settled_total",
		Help:      "Total number of predictions settled by outcome",
	}, []string{"outcome"})
	PredictionsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_recorded_total",
		Help:      "Total number of predictions stored through the API",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route and status code",
	}, []string{"route", "code"})
)

// Gauge metrics
var (
	HistoryRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_records",
		Help:      "Number of prediction records used by the last refresh",
	})
	LastRefreshTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_refresh_timestamp_seconds",
		Help:      "Unix time of the last successful refresh",
	})
	CalibrationStale = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calibration_stale",
		Help:      "1 when the calibration snapshot is stale, 0 otherwise",
	})
)

// Histogram metrics
var (
	RefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Duration of calibration refreshes in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Latency of API requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(RefreshesTotal)
		registry.MustRegister(RefreshFailuresTotal)
		registry.MustRegister(HistoryFetchRetriesTotal)
		registry.MustRegister(HistoryCacheRequestsTotal)
		registry.MustRegister(PredictionsSettledTotal)
		registry.MustRegister(PredictionsRecordedTotal)
		registry.MustRegister(HTTPRequestsTotal)

		registry.MustRegister(HistoryRecords)
		registry.MustRegister(LastRefreshTimestamp)
		registry.MustRegister(CalibrationStale)

		registry.MustRegister(RefreshDuration)
		registry.MustRegister(HTTPRequestDuration)

		registry.MustRegister(SourceWeight)
		registry.MustRegister(SourceConfidenceMultiplier)
		registry.MustRegister(SourcePaused)
		registry.MustRegister(SourceHealthScore)
		registry.MustRegister(BinAdjustmentFactor)
		registry.MustRegister(AdjustedBins)
		registry.MustRegister(PausedSources)
		registry.MustRegister(CalibrationsTotal)
		registry.MustRegister(CalibrationAdjustment)
		registry.MustRegister(ConsensusTotal)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordRefresh records a successful refresh.
func RecordRefresh(durationSeconds float64, records int, unixTime float64) {
	RefreshesTotal.Inc()
	RefreshDuration.Observe(durationSeconds)
	HistoryRecords.Set(float64(records))
	LastRefreshTimestamp.Set(unixTime)
	CalibrationStale.Set(0)
}

// RecordRefreshFailure records a refresh that gave up.
func RecordRefreshFailure() {
	RefreshFailuresTotal.Inc()
}

// RecordHistoryFetchRetry records a retried history fetch.
func RecordHistoryFetchRetry() {
	HistoryFetchRetriesTotal.Inc()
}

// RecordHistoryCacheHit records a history cache hit.
func RecordHistoryCacheHit() {
	HistoryCacheRequestsTotal.WithLabelValues("hit").Inc()
}

// RecordHistoryCacheMiss records a history cache miss.
func RecordHistoryCacheMiss() {
	HistoryCacheRequestsTotal.WithLabelValues("miss").Inc()
}

// RecordPredictionSettled records a settlement.
func RecordPredictionSettled(outcome string) {
	PredictionsSettledTotal.WithLabelValues(outcome).Inc()
}

// RecordPredictionsRecorded records newly stored predictions.
func RecordPredictionsRecorded(n int) {
	PredictionsRecordedTotal.Add(float64(n))
}

// SetCalibrationStale updates the staleness gauge.
func SetCalibrationStale(stale bool) {
	if stale {
		CalibrationStale.Set(1)
		return
	}
	CalibrationStale.Set(0)
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, code string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(route, code).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}
