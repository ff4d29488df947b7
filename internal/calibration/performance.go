package calibration

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yourusername/clever-calibrator/internal/models"
)

// Suspension trip-wires
const (
	pauseMinBetsForGap      = 15
	pauseGapThreshold       = -20.0
	pauseLosingStreak       = -8
	pauseMinBetsForWinRate  = 20
	pauseWinRateThreshold   = 35.0
	pausedWeightEpsilon     = 1e-3
	multiplierSlope         = 0.005
	minConfidenceMultiplier = 0.80
	maxConfidenceMultiplier = 1.10
)

// Pause reasons reported alongside a suspension decision
const (
	PauseReasonUnderperformance = "underperformance_vs_expected"
	PauseReasonLosingStreak     = "losing_streak"
	PauseReasonLowWinRate       = "sustained_low_win_rate"
)

// PerformanceConfig configures the per-source performance tracker
type PerformanceConfig struct {
	MinBetsForCalibration     int     `json:"min_bets_for_calibration"`
	UnderperformanceThreshold float64 `json:"underperformance_threshold"`
	OverperformanceThreshold  float64 `json:"overperformance_threshold"`
	DefaultWeight             float64 `json:"default_weight"`
	UnderperformingWeightMult float64 `json:"underperforming_weight_mult"`
	OverperformingWeightMult  float64 `json:"overperforming_weight_mult"`
}

// DefaultPerformanceConfig returns the default tracker configuration
func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{
		MinBetsForCalibration:     10,
		UnderperformanceThreshold: 10,
		OverperformanceThreshold:  10,
		DefaultWeight:             0.33,
		UnderperformingWeightMult: 0.5,
		OverperformingWeightMult:  1.5,
	}
}

// NeutralPerformance returns the defaults used for a source with no history
func NeutralPerformance(sourceID string, defaultWeight float64) models.SourcePerformance {
	return models.SourcePerformance{
		SourceID:             sourceID,
		ConfidenceMultiplier: 1.0,
		AdjustedWeight:       defaultWeight,
		HealthScore:          50,
	}
}

// AnalyzePerformance computes rolling metrics for one source over the trailing window ending at asOf
func AnalyzePerformance(sourceID string, records []models.PredictionRecord, windowDays int, cfg PerformanceConfig, asOf time.Time) models.SourcePerformance {
	perf := models.SourcePerformance{
		SourceID:   sourceID,
		WindowDays: windowDays,
		ComputedAt: asOf,
	}

	windowStart := asOf.Add(-time.Duration(windowDays) * 24 * time.Hour)
	settled := make([]models.PredictionRecord, 0)
	confidenceSum := 0.0
	inWindow := 0

	for _, rec := range records {
		if rec.SourceID != sourceID {
			continue
		}
		if rec.PredictedAt.Before(windowStart) || rec.PredictedAt.After(asOf) {
			continue
		}

		inWindow++
		confidenceSum += rec.ConfidenceRaw

		switch rec.Outcome {
		case models.OutcomeWon:
			perf.Wins++
			settled = append(settled, rec)
		case models.OutcomeLost:
			perf.Losses++
			settled = append(settled, rec)
		default:
			perf.Pending++
		}
	}

	perf.TotalBets = perf.Wins + perf.Losses
	if perf.TotalBets > 0 {
		perf.WinRate = 100 * float64(perf.Wins) / float64(perf.TotalBets)
	}
	if inWindow > 0 {
		perf.ExpectedWinRate = confidenceSum / float64(inWindow)
	}
	if perf.TotalBets > 0 {
		perf.PerformanceVsExpected = perf.WinRate - perf.ExpectedWinRate
	}

	perf.Streak = calculateStreak(settled)

	if perf.TotalBets >= cfg.MinBetsForCalibration {
		perf.IsUnderperforming = perf.PerformanceVsExpected < -cfg.UnderperformanceThreshold
		perf.IsOverperforming = perf.PerformanceVsExpected > cfg.OverperformanceThreshold
	}

	perf.IsPaused, perf.PauseReason = ShouldPauseAlgorithm(perf)
	perf.ConfidenceMultiplier = confidenceMultiplier(perf, cfg)
	perf.AdjustedWeight = adjustedWeight(perf, cfg)
	perf.HealthScore = HealthScore(perf)

	return perf
}

// AnalyzeAllSources runs the tracker for every distinct source present in records
func AnalyzeAllSources(records []models.PredictionRecord, windowDays int, cfg PerformanceConfig, asOf time.Time) map[string]models.SourcePerformance {
	bySource := make(map[string][]models.PredictionRecord)
	for _, rec := range records {
		bySource[rec.SourceID] = append(bySource[rec.SourceID], rec)
	}

	result := make(map[string]models.SourcePerformance, len(bySource))
	for sourceID, sourceRecords := range bySource {
		result[sourceID] = AnalyzePerformance(sourceID, sourceRecords, windowDays, cfg, asOf)
	}
	return result
}

// calculateStreak returns the signed run length of the most recent identical outcomes
func calculateStreak(settled []models.PredictionRecord) int {
	if len(settled) == 0 {
		return 0
	}

	sorted := append([]models.PredictionRecord{}, settled...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PredictedAt.Equal(sorted[j].PredictedAt) {
			return sorted[i].ID.String() > sorted[j].ID.String()
		}
		return sorted[i].PredictedAt.After(sorted[j].PredictedAt)
	})

	latest := sorted[0].Outcome
	run := 0
	for _, rec := range sorted {
		if rec.Outcome != latest {
			break
		}
		run++
	}

	if latest == models.OutcomeLost {
		return -run
	}
	return run
}

// ShouldPauseAlgorithm applies the three independent suspension trip-wires.
// Each condition only becomes more likely as losses accumulate.
func ShouldPauseAlgorithm(perf models.SourcePerformance) (bool, string) {
	if perf.TotalBets >= pauseMinBetsForGap && perf.PerformanceVsExpected < pauseGapThreshold {
		return true, fmt.Sprintf("%s: %.1f points below expected over %d bets",
			PauseReasonUnderperformance, -perf.PerformanceVsExpected, perf.TotalBets)
	}
	if perf.Streak <= pauseLosingStreak {
		return true, fmt.Sprintf("%s: %d consecutive losses", PauseReasonLosingStreak, -perf.Streak)
	}
	if perf.TotalBets >= pauseMinBetsForWinRate && perf.WinRate < pauseWinRateThreshold {
		return true, fmt.Sprintf("%s: %.1f%% over %d bets", PauseReasonLowWinRate, perf.WinRate, perf.TotalBets)
	}
	return false, ""
}

// HealthScore returns an informational 0-100 score for a source
func HealthScore(perf models.SourcePerformance) float64 {
	score := 50.0
	if perf.TotalBets > 0 {
		score += clamp((perf.WinRate-50)*0.5, -25, 25)
		score += clamp(perf.PerformanceVsExpected*0.75, -15, 15)
	}
	score += clamp(float64(perf.Streak), -10, 10)
	return clamp(score, 0, 100)
}

// confidenceMultiplier maps performance vs expected onto a source-level correction
func confidenceMultiplier(perf models.SourcePerformance, cfg PerformanceConfig) float64 {
	if perf.TotalBets < cfg.MinBetsForCalibration {
		return 1.0
	}
	return clamp(1+perf.PerformanceVsExpected*multiplierSlope, minConfidenceMultiplier, maxConfidenceMultiplier)
}

// adjustedWeight returns the consensus vote weight, zero for paused sources
func adjustedWeight(perf models.SourcePerformance, cfg PerformanceConfig) float64 {
	if perf.IsPaused {
		return 0
	}
	weight := cfg.DefaultWeight
	switch {
	case perf.IsUnderperforming:
		weight *= cfg.UnderperformingWeightMult
	case perf.IsOverperforming:
		weight *= cfg.OverperformingWeightMult
	}
	return math.Max(0, weight)
}

// isSuspended reports whether a source should be excluded from consensus voting
func isSuspended(perf models.SourcePerformance) bool {
	return perf.IsPaused || perf.AdjustedWeight <= pausedWeightEpsilon
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
