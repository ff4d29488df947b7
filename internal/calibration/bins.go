// Package calibration measures how well self-reported confidence matches realized
// outcomes and turns that into corrections for new predictions.
package calibration

import (
	"fmt"
	"math"

	"github.com/yourusername/clever-calibrator/internal/models"
)

const (
	// BinCount is ten 5-point bins over [50,100) plus the partial bin at 100
	BinCount      = 11
	binWidth      = 5.0
	binFloor      = 50.0
	binCeiling    = 100.0
	midpointShift = 2.0

	calibrationTolerance = 5.0

	overconfidenceFloor    = 0.7
	overconfidenceDamping  = 0.8
	underconfidenceCap     = 1.15
	underconfidenceDamping = 0.5

	overallMinSamples   = 3
	problematicBinShare = 0.3
)

// BinConfig configures the bin analyzer
type BinConfig struct {
	// MinSampleThreshold is the number of settled records a bin needs before it may adjust
	MinSampleThreshold int `json:"min_sample_threshold"`
}

// DefaultBinConfig returns the default analyzer configuration
func DefaultBinConfig() BinConfig {
	return BinConfig{MinSampleThreshold: 5}
}

// BinAnalysis is the full result of one bin calibration pass
type BinAnalysis struct {
	Bins                    []models.CalibrationBin `json:"bins"`
	TotalSettled            int                     `json:"total_settled"`
	TotalPending            int                     `json:"total_pending"`
	Unbinned                int                     `json:"unbinned"`
	OverallAdjustmentFactor float64                 `json:"overall_adjustment_factor"`
	ProblematicBins         int                     `json:"problematic_bins"`
	IsCalibrated            bool                    `json:"is_calibrated"`
}

// NeutralBinAnalysis returns an analysis that applies no adjustment anywhere
func NeutralBinAnalysis() BinAnalysis {
	return AnalyzeBins(nil, DefaultBinConfig())
}

// BinIndex maps a confidence value to its bin, clamping out-of-domain values
func BinIndex(confidence float64) int {
	if math.IsNaN(confidence) {
		return 0
	}
	idx := math.Floor((confidence - binFloor) / binWidth)
	if idx < 0 {
		return 0
	}
	if idx > BinCount-1 {
		return BinCount - 1
	}
	return int(idx)
}

// newBins builds the empty bin table
func newBins() []models.CalibrationBin {
	bins := make([]models.CalibrationBin, BinCount)
	for i := range bins {
		minConf := binFloor + float64(i)*binWidth
		maxConf := minConf + binWidth - 1
		expected := minConf + midpointShift
		label := fmt.Sprintf("%.0f-%.0f", minConf, maxConf)
		if i == BinCount-1 {
			maxConf = binCeiling
			expected = binCeiling
			label = fmt.Sprintf("%.0f", binCeiling)
		}
		bins[i] = models.CalibrationBin{
			Index:            i,
			MinConfidence:    minConf,
			MaxConfidence:    maxConf,
			Label:            label,
			ExpectedWinRate:  expected,
			ActualWinRate:    expected,
			AdjustmentFactor: 1.0,
		}
	}
	return bins
}

// AnalyzeBins partitions settled records into confidence bins and derives per-bin
// adjustment factors. It is pure: the same input always yields the same output.
func AnalyzeBins(records []models.PredictionRecord, cfg BinConfig) BinAnalysis {
	if cfg.MinSampleThreshold <= 0 {
		cfg.MinSampleThreshold = DefaultBinConfig().MinSampleThreshold
	}

	bins := newBins()
	analysis := BinAnalysis{}

	for i := range records {
		rec := &records[i]
		conf := rec.ConfidenceRaw
		if math.IsNaN(conf) || conf < binFloor || conf > binCeiling {
			analysis.Unbinned++
			continue
		}
		bin := &bins[BinIndex(conf)]

		switch rec.Outcome {
		case models.OutcomeWon:
			bin.Wins++
			analysis.TotalSettled++
		case models.OutcomeLost:
			bin.Losses++
			analysis.TotalSettled++
		default:
			bin.PendingCount++
			analysis.TotalPending++
		}
	}

	weightedSum := 0.0
	weightedSamples := 0
	for i := range bins {
		bin := &bins[i]
		bin.SampleSize = bin.Wins + bin.Losses
		scoreBin(bin, cfg.MinSampleThreshold)

		if bin.SampleSize >= overallMinSamples {
			weightedSum += bin.AdjustmentFactor * float64(bin.SampleSize)
			weightedSamples += bin.SampleSize
		}
		if bin.IsProblematic(cfg.MinSampleThreshold) {
			analysis.ProblematicBins++
		}
	}

	analysis.Bins = bins
	analysis.OverallAdjustmentFactor = 1.0
	if weightedSamples > 0 {
		analysis.OverallAdjustmentFactor = weightedSum / float64(weightedSamples)
	}
	analysis.IsCalibrated = analysis.ProblematicBins <= int(math.Ceil(problematicBinShare*BinCount))

	return analysis
}

// scoreBin fills in win rates, error flags and the adjustment factor for one bin
func scoreBin(bin *models.CalibrationBin, minSamples int) {
	bin.AdjustmentFactor = 1.0
	if bin.SampleSize == 0 {
		bin.ActualWinRate = bin.ExpectedWinRate
		bin.CalibrationError = 0
		return
	}

	bin.ActualWinRate = 100 * float64(bin.Wins) / float64(bin.SampleSize)
	bin.CalibrationError = bin.ActualWinRate - bin.ExpectedWinRate

	// Insufficient data never produces an adjustment
	if bin.SampleSize < minSamples {
		return
	}

	ratio := bin.ActualWinRate / bin.ExpectedWinRate
	switch {
	case bin.CalibrationError < -calibrationTolerance:
		bin.IsOverconfident = true
		target := math.Max(overconfidenceFloor, ratio)
		bin.AdjustmentFactor = overconfidenceFloor + (target-overconfidenceFloor)*overconfidenceDamping
	case bin.CalibrationError > calibrationTolerance:
		bin.IsUnderconfident = true
		target := math.Min(underconfidenceCap, ratio)
		bin.AdjustmentFactor = 1.0 + (target-1.0)*underconfidenceDamping
	}
}

// AdjustedBinCount returns how many bins apply a non-identity factor
func (a BinAnalysis) AdjustedBinCount() int {
	count := 0
	for i := range a.Bins {
		if a.Bins[i].IsAdjusted() {
			count++
		}
	}
	return count
}

// Bin returns the bin for a confidence value, or a neutral bin when the table is empty
func (a BinAnalysis) Bin(confidence float64) models.CalibrationBin {
	if len(a.Bins) != BinCount {
		return newBins()[BinIndex(confidence)]
	}
	return a.Bins[BinIndex(confidence)]
}
