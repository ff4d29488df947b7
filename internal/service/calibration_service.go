// Package service coordinates the calibration engine with its history source, persistence and telemetry.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/clever-calibrator/internal/calibration"
	"github.com/yourusername/clever-calibrator/internal/logger"
	"github.com/yourusername/clever-calibrator/internal/metrics"
	"github.com/yourusername/clever-calibrator/internal/models"
	"github.com/yourusername/clever-calibrator/internal/repository"
	"github.com/yourusername/clever-calibrator/internal/staking"
	"github.com/yourusername/clever-calibrator/internal/tracing"
	"github.com/yourusername/clever-calibrator/internal/uncertainty"
)

// ReasonSourcePaused marks a stake suggestion withheld because the source is suspended
const ReasonSourcePaused = "source_paused"

// ErrNoPredictionStore is returned by writes when no prediction repository is configured
var ErrNoPredictionStore = errors.New("prediction repository is not configured")

// Config configures the calibration service
type Config struct {
	HistoryWindowDays     int
	PerformanceWindowDays int
	RetryInitialInterval  time.Duration
	RetryMaxElapsed       time.Duration
	Staking               staking.Config
	Uncertainty           uncertainty.Config
	DefaultBankroll       decimal.Decimal
}

// DefaultConfig returns the service defaults
func DefaultConfig() Config {
	return Config{
		HistoryWindowDays:     90,
		PerformanceWindowDays: 30,
		RetryInitialInterval:  500 * time.Millisecond,
		RetryMaxElapsed:       2 * time.Minute,
		Staking:               staking.DefaultConfig(),
		Uncertainty:           uncertainty.DefaultConfig(),
		DefaultBankroll:       decimal.NewFromInt(1000),
	}
}

// Dependencies are the collaborators a CalibrationService needs.
// Predictions and Snapshots are optional.
type Dependencies struct {
	Engine      *calibration.Engine
	Source      repository.PredictionSource
	Predictions repository.PredictionRepository
	Snapshots   repository.SnapshotRepository
	Logger      *logrus.Logger
}

// CalibrationService refreshes the engine from history and serves calibration queries
type CalibrationService struct {
	config      Config
	engine      *calibration.Engine
	source      repository.PredictionSource
	predictions repository.PredictionRepository
	snapshots   repository.SnapshotRepository
	logger      *logrus.Logger
	calLogger   *logger.CalibrationLogger
	audit       *logger.AuditLogger
	now         func() time.Time

	// serializes refreshes; reads never take it
	refreshMu sync.Mutex
}

// NewCalibrationService creates a new calibration service
func NewCalibrationService(cfg Config, deps Dependencies) (*CalibrationService, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("calibration engine is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("prediction source is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if cfg.HistoryWindowDays <= 0 {
		cfg.HistoryWindowDays = DefaultConfig().HistoryWindowDays
	}
	if cfg.PerformanceWindowDays <= 0 {
		cfg.PerformanceWindowDays = DefaultConfig().PerformanceWindowDays
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultConfig().RetryInitialInterval
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = DefaultConfig().RetryMaxElapsed
	}
	if !cfg.DefaultBankroll.IsPositive() {
		cfg.DefaultBankroll = DefaultConfig().DefaultBankroll
	}

	return &CalibrationService{
		config:      cfg,
		engine:      deps.Engine,
		source:      deps.Source,
		predictions: deps.Predictions,
		snapshots:   deps.Snapshots,
		logger:      deps.Logger,
		calLogger:   logger.NewCalibrationLogger(deps.Logger),
		audit:       logger.NewAuditLogger(deps.Logger),
		now:         time.Now,
	}, nil
}

// Engine returns the underlying calibration engine
func (s *CalibrationService) Engine() *calibration.Engine {
	return s.engine
}

// Refresh fetches the history window, rebuilds both tables and publishes them.
// When the fetch keeps failing the previous snapshot stays in place.
func (s *CalibrationService) Refresh(ctx context.Context) (*calibration.Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	runID := uuid.NewString()
	start := s.now()
	since := start.AddDate(0, 0, -s.config.HistoryWindowDays)
	previous := s.engine.Snapshot()
	tracing.AddAnnotation(ctx, "run_id", runID)

	records, attempts, err := s.fetchWithRetry(ctx, since)
	if err != nil {
		tracing.AddError(ctx, err)
		metrics.RecordRefreshFailure()
		metrics.SetCalibrationStale(s.engine.IsCalibrationStale())
		s.calLogger.LogRefreshFailure(runID, err, attempts, previous.LastUpdated)
		return nil, fmt.Errorf("failed to fetch prediction history: %w", err)
	}

	snap := s.engine.Refresh(records, s.config.PerformanceWindowDays)
	duration := s.now().Sub(start)

	s.publishMetrics(snap, len(records), duration)
	s.auditTransitions(previous, snap)
	s.persist(ctx, runID, snap, len(records))

	summary := s.engine.Summary()
	s.calLogger.LogRefresh(runID, len(records), summary.TotalSources, summary.AdjustedBins,
		summary.PausedSources, summary.IsCalibrated, duration)

	return snap, nil
}

// EnsureFresh refreshes only when the snapshot is stale
func (s *CalibrationService) EnsureFresh(ctx context.Context) error {
	if !s.engine.IsCalibrationStale() {
		return nil
	}
	s.calLogger.LogStale(s.engine.Snapshot().LastUpdated, s.engine.Config().StaleAfter)
	_, err := s.Refresh(ctx)
	return err
}

// WarmStart publishes the latest persisted snapshot so calibration applies before the first refresh.
// It returns false when there is no store or nothing persisted yet.
func (s *CalibrationService) WarmStart(ctx context.Context) (bool, error) {
	if s.snapshots == nil {
		return false, nil
	}

	stored, err := s.snapshots.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	s.engine.Restore(fromModel(stored, s.engine.Config().Bins.MinSampleThreshold))
	s.logger.WithFields(logrus.Fields{
		"snapshot_id": stored.ID,
		"computed_at": stored.ComputedAt,
	}).Info("Restored persisted calibration snapshot")
	return true, nil
}

// PruneSnapshots removes persisted snapshots older than retention
func (s *CalibrationService) PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	if s.snapshots == nil {
		return 0, nil
	}
	removed, err := s.snapshots.PruneBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Pruned calibration snapshots")
	}
	return removed, nil
}

// Calibrate adjusts one raw confidence for a source
func (s *CalibrationService) Calibrate(sourceID string, rawConfidence float64) calibration.CalibratedResult {
	result := s.engine.Calibrate(rawConfidence, sourceID)
	metrics.RecordCalibration(result.RawConfidence, result.AdjustedConfidence, result.WasAdjusted)
	s.calLogger.LogCalibration(sourceID, result.RawConfidence, result.AdjustedConfidence,
		result.Multiplier, result.BinLabel, result.WasAdjusted)
	return result
}

// Consensus combines several sources' picks for one match
func (s *CalibrationService) Consensus(predictions []calibration.SourcePrediction) calibration.ConsensusResult {
	result := s.engine.Consensus(predictions)
	metrics.RecordConsensus(result.IsHighConsensus, result.IsTie)
	s.calLogger.LogConsensus(result.Pick, result.Confidence, result.ActiveSources,
		result.ExcludedSources, result.IsHighConsensus, result.IsTie)
	return result
}

// Summary reports the state of the calibration snapshot
func (s *CalibrationService) Summary() calibration.CalibrationSummary {
	summary := s.engine.Summary()
	metrics.SetCalibrationStale(summary.IsStale)
	return summary
}

// Sources returns the per-source performance table ordered by source ID
func (s *CalibrationService) Sources() []models.SourcePerformance {
	return sortedSources(s.engine.Snapshot())
}

// StakeAdvice pairs the calibrated confidence with the stake it supports
type StakeAdvice struct {
	Calibration calibration.CalibratedResult `json:"calibration"`
	Stake       staking.StakeSuggestion      `json:"stake"`
}

// SuggestStake calibrates rawConfidence and sizes a stake at decimalOdds.
// A zero bankroll uses the configured default; paused sources get no stake.
func (s *CalibrationService) SuggestStake(sourceID string, rawConfidence, decimalOdds float64, bankroll decimal.Decimal) StakeAdvice {
	calibrated := s.Calibrate(sourceID, rawConfidence)
	if bankroll.IsZero() {
		bankroll = s.config.DefaultBankroll
	}

	if calibrated.SourcePaused {
		return StakeAdvice{
			Calibration: calibrated,
			Stake: staking.StakeSuggestion{
				Confidence: calibrated.AdjustedConfidence,
				Odds:       decimalOdds,
				Stake:      decimal.Zero,
				Reason:     ReasonSourcePaused,
			},
		}
	}

	return StakeAdvice{
		Calibration: calibrated,
		Stake:       staking.SuggestStake(calibrated.AdjustedConfidence, decimalOdds, bankroll, s.config.Staking),
	}
}

// UncertaintyEstimate pairs the calibrated confidence with its simulated spread
type UncertaintyEstimate struct {
	Calibration calibration.CalibratedResult `json:"calibration"`
	Interval    uncertainty.Result           `json:"interval"`
}

// Uncertainty calibrates rawConfidence and simulates its spread using the bin's sample size
func (s *CalibrationService) Uncertainty(sourceID string, rawConfidence float64) UncertaintyEstimate {
	calibrated := s.Calibrate(sourceID, rawConfidence)
	return UncertaintyEstimate{
		Calibration: calibrated,
		Interval:    uncertainty.Estimate(calibrated.AdjustedConfidence, calibrated.BinSampleSize, s.config.Uncertainty),
	}
}

// RecordPredictions stores new predictions, assigning IDs and defaulting the
// outcome to pending. Records already present by ID are left untouched.
func (s *CalibrationService) RecordPredictions(ctx context.Context, records []models.PredictionRecord) ([]uuid.UUID, error) {
	if s.predictions == nil {
		return nil, ErrNoPredictionStore
	}
	if len(records) == 0 {
		return []uuid.UUID{}, nil
	}

	for i := range records {
		if records[i].Outcome == "" {
			records[i].Outcome = models.OutcomePending
		}
		if records[i].PredictedAt.IsZero() {
			records[i].PredictedAt = s.now()
		}
	}

	if err := s.predictions.InsertBatch(ctx, records); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}

	s.invalidateHistory()
	metrics.RecordPredictionsRecorded(len(records))
	return ids, nil
}

// SettlePrediction records a final outcome for a pending prediction.
// The new outcome is picked up by the next refresh.
func (s *CalibrationService) SettlePrediction(ctx context.Context, id uuid.UUID, outcome models.Outcome) error {
	if s.predictions == nil {
		return ErrNoPredictionStore
	}
	if err := s.predictions.Settle(ctx, id, outcome); err != nil {
		return err
	}

	sourceID := ""
	if rec, err := s.predictions.GetByID(ctx, id); err == nil {
		sourceID = rec.SourceID
	}

	s.invalidateHistory()
	metrics.RecordPredictionSettled(string(outcome))
	s.audit.LogPredictionSettled(id.String(), sourceID, string(outcome))
	return nil
}

// invalidateHistory drops cached history so the next refresh sees a write
func (s *CalibrationService) invalidateHistory() {
	if inv, ok := s.source.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}

func (s *CalibrationService) fetchWithRetry(ctx context.Context, since time.Time) ([]models.PredictionRecord, int, error) {
	var records []models.PredictionRecord
	attempts := 0

	operation := func() error {
		attempts++
		recs, err := s.source.FetchPredictions(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			metrics.RecordHistoryFetchRetry()
			s.logger.WithError(err).WithField("attempt", attempts).Warn("History fetch failed, retrying")
			return err
		}
		records = recs
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.RetryInitialInterval
	policy.MaxElapsedTime = s.config.RetryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, attempts, err
	}
	return records, attempts, nil
}

func (s *CalibrationService) publishMetrics(snap *calibration.Snapshot, records int, duration time.Duration) {
	sources := make([]metrics.SourceSnapshot, 0, len(snap.Sources))
	for _, perf := range snap.Sources {
		sources = append(sources, metrics.SourceSnapshot{
			SourceID:             perf.SourceID,
			Weight:               perf.AdjustedWeight,
			ConfidenceMultiplier: perf.ConfidenceMultiplier,
			Paused:               perf.IsPaused,
			HealthScore:          perf.HealthScore,
		})
	}
	metrics.UpdateSources(sources)

	factors := make(map[string]float64, len(snap.Bins.Bins))
	for _, bin := range snap.Bins.Bins {
		factors[bin.Label] = bin.AdjustmentFactor
	}
	metrics.UpdateBins(factors)

	metrics.RecordRefresh(duration.Seconds(), records, float64(snap.LastUpdated.Unix()))
	metrics.SetCalibrationStale(false)
}

// auditTransitions logs sources whose suspension state changed between snapshots
func (s *CalibrationService) auditTransitions(previous, current *calibration.Snapshot) {
	for _, perf := range sortedSources(current) {
		before, known := previous.Source(perf.SourceID)
		switch {
		case perf.IsPaused && (!known || !before.IsPaused):
			s.audit.LogSourcePaused(perf.SourceID, perf.PauseReason, perf.TotalBets,
				perf.WinRate, perf.PerformanceVsExpected, perf.Streak)
		case !perf.IsPaused && known && before.IsPaused:
			s.audit.LogSourceResumed(perf.SourceID, perf.HealthScore)
		}
	}
}

// persist stores the snapshot when a store is configured; failures are logged only
func (s *CalibrationService) persist(ctx context.Context, runID string, snap *calibration.Snapshot, records int) {
	if s.snapshots == nil {
		return
	}
	stored := toModel(snap, records)
	if err := s.snapshots.Save(ctx, stored); err != nil {
		s.logger.WithError(err).WithField("run_id", runID).Warn("Failed to persist calibration snapshot")
	}
}

func toModel(snap *calibration.Snapshot, records int) *models.CalibrationSnapshot {
	return &models.CalibrationSnapshot{
		ComputedAt:              snap.LastUpdated,
		RecordCount:             records,
		IsCalibrated:            snap.Bins.IsCalibrated,
		OverallAdjustmentFactor: snap.Bins.OverallAdjustmentFactor,
		Bins:                    append([]models.CalibrationBin{}, snap.Bins.Bins...),
		Sources:                 sortedSources(snap),
	}
}

// fromModel rebuilds engine tables from a persisted row; minSamples must match the
// engine's bin config so restored and freshly computed summaries agree
func fromModel(stored *models.CalibrationSnapshot, minSamples int) calibration.Snapshot {
	bins := calibration.BinAnalysis{
		Bins:                    append([]models.CalibrationBin{}, stored.Bins...),
		OverallAdjustmentFactor: stored.OverallAdjustmentFactor,
		IsCalibrated:            stored.IsCalibrated,
	}
	for _, bin := range bins.Bins {
		bins.TotalSettled += bin.SampleSize
		bins.TotalPending += bin.PendingCount
		if bin.IsProblematic(minSamples) {
			bins.ProblematicBins++
		}
	}

	sources := make(map[string]models.SourcePerformance, len(stored.Sources))
	for _, perf := range stored.Sources {
		sources[perf.SourceID] = perf
	}

	return calibration.Snapshot{
		Bins:             bins,
		Sources:          sources,
		BinsUpdatedAt:    stored.ComputedAt,
		SourcesUpdatedAt: stored.ComputedAt,
		LastUpdated:      stored.ComputedAt,
	}
}

func sortedSources(snap *calibration.Snapshot) []models.SourcePerformance {
	out := make([]models.SourcePerformance, 0, len(snap.Sources))
	for _, perf := range snap.Sources {
		out = append(out, perf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}
