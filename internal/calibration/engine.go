package calibration

import (
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yourusername/clever-calibrator/internal/models"
)

const (
	// Presented confidence never leaves this band
	MinPresentedConfidence = 45.0
	MaxPresentedConfidence = 95.0
)

// EngineConfig configures a calibration engine
type EngineConfig struct {
	Bins        BinConfig
	Performance PerformanceConfig
	StaleAfter  time.Duration
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Bins:        DefaultBinConfig(),
		Performance: DefaultPerformanceConfig(),
		StaleAfter:  30 * time.Minute,
	}
}

// Snapshot is an immutable view of the derived calibration tables.
// Callers must treat every field as read-only.
type Snapshot struct {
	Bins             BinAnalysis                         `json:"bins"`
	Sources          map[string]models.SourcePerformance `json:"sources"`
	BinsUpdatedAt    time.Time                           `json:"bins_updated_at"`
	SourcesUpdatedAt time.Time                           `json:"sources_updated_at"`
	LastUpdated      time.Time                           `json:"last_updated"`
}

// Source returns the performance entry for a source and whether it was found
func (s *Snapshot) Source(sourceID string) (models.SourcePerformance, bool) {
	perf, ok := s.Sources[sourceID]
	return perf, ok
}

// Engine holds one calibration context. Refreshes replace the snapshot wholesale
// with a single pointer swap, so readers see either the old or the new tables.
type Engine struct {
	config   EngineConfig
	snapshot atomic.Pointer[Snapshot]
	now      func() time.Time
}

// NewEngine creates an engine whose initial snapshot applies no adjustment
func NewEngine(cfg EngineConfig) *Engine {
	defaults := DefaultEngineConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	if cfg.Bins.MinSampleThreshold <= 0 {
		cfg.Bins = defaults.Bins
	}
	if cfg.Performance.DefaultWeight <= 0 {
		cfg.Performance.DefaultWeight = defaults.Performance.DefaultWeight
	}

	e := &Engine{
		config: cfg,
		now:    time.Now,
	}
	e.snapshot.Store(&Snapshot{
		Bins:    NeutralBinAnalysis(),
		Sources: map[string]models.SourcePerformance{},
	})
	return e
}

// Config returns the engine configuration
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Snapshot returns the current snapshot
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// swap applies fn to a copy of the current snapshot and publishes the result
func (e *Engine) swap(fn func(next *Snapshot)) *Snapshot {
	for {
		current := e.snapshot.Load()
		next := *current
		fn(&next)
		if e.snapshot.CompareAndSwap(current, &next) {
			return &next
		}
	}
}

// UpdateBinCalibration recomputes the bin table from the full record set
func (e *Engine) UpdateBinCalibration(records []models.PredictionRecord) *Snapshot {
	bins := AnalyzeBins(records, e.config.Bins)
	now := e.now()
	return e.swap(func(next *Snapshot) {
		next.Bins = bins
		next.BinsUpdatedAt = now
		next.LastUpdated = now
	})
}

// UpdatePerformance recomputes every source's performance over the trailing window
func (e *Engine) UpdatePerformance(records []models.PredictionRecord, windowDays int) *Snapshot {
	now := e.now()
	sources := AnalyzeAllSources(records, windowDays, e.config.Performance, now)
	return e.swap(func(next *Snapshot) {
		next.Sources = sources
		next.SourcesUpdatedAt = now
		next.LastUpdated = now
	})
}

// Refresh recomputes both tables and publishes them in a single swap
func (e *Engine) Refresh(records []models.PredictionRecord, windowDays int) *Snapshot {
	now := e.now()
	next := &Snapshot{
		Bins:             AnalyzeBins(records, e.config.Bins),
		Sources:          AnalyzeAllSources(records, windowDays, e.config.Performance, now),
		BinsUpdatedAt:    now,
		SourcesUpdatedAt: now,
		LastUpdated:      now,
	}
	e.snapshot.Store(next)
	return next
}

// Restore publishes a previously computed snapshot, typically one loaded at startup.
// A snapshot with a malformed bin table falls back to neutral bins.
func (e *Engine) Restore(snap Snapshot) *Snapshot {
	if len(snap.Bins.Bins) != BinCount {
		snap.Bins = NeutralBinAnalysis()
	}
	if snap.Sources == nil {
		snap.Sources = map[string]models.SourcePerformance{}
	}
	e.snapshot.Store(&snap)
	return &snap
}

// IsCalibrationStale reports whether the snapshot was never refreshed or is older than StaleAfter
func (e *Engine) IsCalibrationStale() bool {
	return e.isStale(e.snapshot.Load())
}

func (e *Engine) isStale(snap *Snapshot) bool {
	if snap.LastUpdated.IsZero() {
		return true
	}
	return e.now().Sub(snap.LastUpdated) > e.config.StaleAfter
}

// sourceOrDefault returns the cached performance or neutral defaults for unknown sources
func (e *Engine) sourceOrDefault(snap *Snapshot, sourceID string) models.SourcePerformance {
	if perf, ok := snap.Source(sourceID); ok {
		return perf
	}
	return NeutralPerformance(sourceID, e.config.Performance.DefaultWeight)
}

// CalibratedResult is the outcome of one calibrate call
type CalibratedResult struct {
	SourceID           string  `json:"source_id"`
	RawConfidence      float64 `json:"raw_confidence"`
	AdjustedConfidence float64 `json:"adjusted_confidence"`
	SourceMultiplier   float64 `json:"source_multiplier"`
	BinFactor          float64 `json:"bin_factor"`
	Multiplier         float64 `json:"multiplier"`
	BinLabel           string  `json:"bin_label"`
	BinSampleSize      int     `json:"bin_sample_size"`
	WasAdjusted        bool    `json:"was_adjusted"`
	SourcePaused       bool    `json:"source_paused"`
}

// Calibrate applies the source correction, then the bin correction, then the presentation clamp.
// Missing data degrades to the identity transform; it never fails.
func (e *Engine) Calibrate(rawConfidence float64, sourceID string) CalibratedResult {
	snap := e.snapshot.Load()
	perf := e.sourceOrDefault(snap, sourceID)

	sourceMult := perf.ConfidenceMultiplier
	if sourceMult <= 0 || math.IsNaN(sourceMult) {
		sourceMult = 1.0
	}

	stage1 := rawConfidence * sourceMult
	bin := snap.Bins.Bin(stage1)
	stage2 := stage1 * bin.AdjustmentFactor

	return CalibratedResult{
		SourceID:           sourceID,
		RawConfidence:      rawConfidence,
		AdjustedConfidence: ClampConfidence(stage2),
		SourceMultiplier:   sourceMult,
		BinFactor:          bin.AdjustmentFactor,
		Multiplier:         sourceMult * bin.AdjustmentFactor,
		BinLabel:           bin.Label,
		BinSampleSize:      bin.SampleSize,
		WasAdjusted:        bin.AdjustmentFactor != 1.0,
		SourcePaused:       perf.IsPaused,
	}
}

// ClampConfidence bounds a confidence value to the presented band
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return MinPresentedConfidence
	}
	return clamp(v, MinPresentedConfidence, MaxPresentedConfidence)
}

// SourcePrediction is one source's pick for a match
type SourcePrediction struct {
	SourceID   string  `json:"source_id" validate:"required"`
	Pick       string  `json:"pick" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=100"`
}

// ConsensusGroup aggregates all active predictions sharing a pick
type ConsensusGroup struct {
	Pick               string   `json:"pick"`
	WeightedConfidence float64  `json:"weighted_confidence"`
	TotalWeight        float64  `json:"total_weight"`
	Sources            []string `json:"sources"`
}

// ConsensusResult is the weighted aggregate of several sources' predictions
type ConsensusResult struct {
	Pick            string             `json:"pick"`
	Confidence      float64            `json:"confidence"`
	Weights         map[string]float64 `json:"weights"`
	Groups          []ConsensusGroup   `json:"groups"`
	ActiveSources   int                `json:"active_sources"`
	ExcludedSources []string           `json:"excluded_sources"`
	IsHighConsensus bool               `json:"is_high_consensus"`
	IsTie           bool               `json:"is_tie"`
}

// Consensus combines predictions into a single weighted pick, ignoring paused sources.
// Ties on weighted confidence go to the group with more total weight, then to the
// lexicographically smallest pick; IsTie reports that the top confidence was shared.
func (e *Engine) Consensus(predictions []SourcePrediction) ConsensusResult {
	snap := e.snapshot.Load()
	result := ConsensusResult{
		Weights:         make(map[string]float64),
		Groups:          make([]ConsensusGroup, 0),
		ExcludedSources: make([]string, 0),
	}

	type accumulator struct {
		weightedSum float64
		totalWeight float64
		sources     []string
	}
	groups := make(map[string]*accumulator)
	order := make([]string, 0)
	activeSources := make(map[string]struct{})

	for _, p := range predictions {
		perf := e.sourceOrDefault(snap, p.SourceID)
		if isSuspended(perf) {
			result.ExcludedSources = append(result.ExcludedSources, p.SourceID)
			continue
		}

		mult := perf.ConfidenceMultiplier
		if mult <= 0 || math.IsNaN(mult) {
			mult = 1.0
		}

		acc, ok := groups[p.Pick]
		if !ok {
			acc = &accumulator{}
			groups[p.Pick] = acc
			order = append(order, p.Pick)
		}
		acc.weightedSum += p.Confidence * mult * perf.AdjustedWeight
		acc.totalWeight += perf.AdjustedWeight
		acc.sources = append(acc.sources, p.SourceID)

		result.Weights[p.SourceID] = perf.AdjustedWeight
		activeSources[p.SourceID] = struct{}{}
	}

	for _, pick := range order {
		acc := groups[pick]
		result.Groups = append(result.Groups, ConsensusGroup{
			Pick:               pick,
			WeightedConfidence: acc.weightedSum / acc.totalWeight,
			TotalWeight:        acc.totalWeight,
			Sources:            acc.sources,
		})
	}

	result.ActiveSources = len(activeSources)
	if len(result.Groups) == 0 {
		return result
	}

	ranked := append([]ConsensusGroup{}, result.Groups...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.WeightedConfidence != b.WeightedConfidence {
			return a.WeightedConfidence > b.WeightedConfidence
		}
		if a.TotalWeight != b.TotalWeight {
			return a.TotalWeight > b.TotalWeight
		}
		return a.Pick < b.Pick
	})

	result.Pick = ranked[0].Pick
	result.Confidence = ranked[0].WeightedConfidence
	result.IsTie = len(ranked) > 1 && ranked[1].WeightedConfidence == ranked[0].WeightedConfidence
	result.IsHighConsensus = result.ActiveSources >= 2 && len(result.Groups) == 1

	return result
}

// CalibrationSummary is a read-only status report for operational dashboards
type CalibrationSummary struct {
	IsActive                bool      `json:"is_active"`
	LastUpdated             time.Time `json:"last_updated"`
	IsStale                 bool      `json:"is_stale"`
	TotalSources            int       `json:"total_sources"`
	AdjustedSources         int       `json:"adjusted_sources"`
	PausedSources           int       `json:"paused_sources"`
	PausedSourceIDs         []string  `json:"paused_source_ids"`
	TotalBins               int       `json:"total_bins"`
	AdjustedBins            int       `json:"adjusted_bins"`
	ProblematicBins         int       `json:"problematic_bins"`
	IsCalibrated            bool      `json:"is_calibrated"`
	OverallAdjustmentFactor float64   `json:"overall_adjustment_factor"`
}

// Summary reports cache activity and how many sources and bins currently adjust
func (e *Engine) Summary() CalibrationSummary {
	snap := e.snapshot.Load()
	summary := CalibrationSummary{
		IsActive:                !snap.LastUpdated.IsZero(),
		LastUpdated:             snap.LastUpdated,
		IsStale:                 e.isStale(snap),
		TotalSources:            len(snap.Sources),
		PausedSourceIDs:         make([]string, 0),
		TotalBins:               len(snap.Bins.Bins),
		AdjustedBins:            snap.Bins.AdjustedBinCount(),
		ProblematicBins:         snap.Bins.ProblematicBins,
		IsCalibrated:            snap.Bins.IsCalibrated,
		OverallAdjustmentFactor: snap.Bins.OverallAdjustmentFactor,
	}

	for id, perf := range snap.Sources {
		if perf.IsAdjusted() {
			summary.AdjustedSources++
		}
		if perf.IsPaused {
			summary.PausedSources++
			summary.PausedSourceIDs = append(summary.PausedSourceIDs, id)
		}
	}
	sort.Strings(summary.PausedSourceIDs)

	return summary
}
