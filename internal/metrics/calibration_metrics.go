package metrics

import "github.com/prometheus/client_golang/prometheus"

// Per-source gauge vectors
var (
	SourceWeight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_weight",
		Help:      "Consensus vote weight for each source",
	}, []string{"source_id"})

	SourceConfidenceMultiplier = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_confidence_multiplier",
		Help:      "Source-level confidence multiplier",
	}, []string{"source_id"})

	SourcePaused = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_paused",
		Help:      "1 when the source is suspended from consensus",
	}, []string{"source_id"})

	SourceHealthScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_health_score",
		Help:      "Informational 0-100 health score for each source",
	}, []string{"source_id"})
)

// Bin and aggregate gauges
var (
	BinAdjustmentFactor = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bin_adjustment_factor",
		Help:      "Adjustment factor for each confidence bin",
	}, []string{"bin"})

	AdjustedBins = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "adjusted_bins",
		Help:      "Number of bins applying a non-identity factor",
	})

	PausedSources = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "paused_sources",
		Help:      "Number of sources currently suspended",
	})
)

// Calibrate and consensus traffic
var (
	CalibrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calibrations_total",
		Help:      "Calibrate calls by whether a bin adjustment applied",
	}, []string{"adjusted"})

	CalibrationAdjustment = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "calibration_adjustment_points",
		Help:      "Adjusted minus raw confidence in percentage points",
		Buckets:   []float64{-30, -20, -10, -5, -1, 0, 1, 5, 10, 20},
	})

	ConsensusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consensus_total",
		Help:      "Consensus decisions by agreement level",
	}, []string{"agreement"})
)

// SourceSnapshot is the per-source view exported after a refresh
type SourceSnapshot struct {
	SourceID             string
	Weight               float64
	ConfidenceMultiplier float64
	Paused               bool
	HealthScore          float64
}

// UpdateSources replaces all per-source gauges with the given snapshot.
func UpdateSources(sources []SourceSnapshot) {
	SourceWeight.Reset()
	SourceConfidenceMultiplier.Reset()
	SourcePaused.Reset()
	SourceHealthScore.Reset()

	paused := 0
	for _, s := range sources {
		SourceWeight.WithLabelValues(s.SourceID).Set(s.Weight)
		SourceConfidenceMultiplier.WithLabelValues(s.SourceID).Set(s.ConfidenceMultiplier)
		SourceHealthScore.WithLabelValues(s.SourceID).Set(s.HealthScore)
		if s.Paused {
			paused++
			SourcePaused.WithLabelValues(s.SourceID).Set(1)
		} else {
			SourcePaused.WithLabelValues(s.SourceID).Set(0)
		}
	}
	PausedSources.Set(float64(paused))
}

// UpdateBins replaces the per-bin gauges, keyed by bin label.
func UpdateBins(factors map[string]float64) {
	BinAdjustmentFactor.Reset()
	adjusted := 0
	for label, factor := range factors {
		BinAdjustmentFactor.WithLabelValues(label).Set(factor)
		if factor != 1.0 {
			adjusted++
		}
	}
	AdjustedBins.Set(float64(adjusted))
}

// RecordCalibration records a calibrate call.
func RecordCalibration(raw, adjusted float64, wasAdjusted bool) {
	label := "false"
	if wasAdjusted {
		label = "true"
	}
	CalibrationsTotal.WithLabelValues(label).Inc()
	CalibrationAdjustment.Observe(adjusted - raw)
}

// RecordConsensus records a consensus decision.
func RecordConsensus(highConsensus, tie bool) {
	agreement := "split"
	switch {
	case highConsensus:
		agreement = "unanimous"
	case tie:
		agreement = "tie"
	}
	ConsensusTotal.WithLabelValues(agreement).Inc()
}
