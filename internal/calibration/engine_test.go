package calibration

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/clever-calibrator/internal/models"
)

func newTestEngine() *Engine {
	e := NewEngine(DefaultEngineConfig())
	e.now = func() time.Time { return baseTime }
	return e
}

// withSources publishes a snapshot containing the given performance entries
func withSources(e *Engine, perfs ...models.SourcePerformance) {
	sources := make(map[string]models.SourcePerformance, len(perfs))
	for _, p := range perfs {
		sources[p.SourceID] = p
	}
	e.snapshot.Store(&Snapshot{
		Bins:             NeutralBinAnalysis(),
		Sources:          sources,
		SourcesUpdatedAt: baseTime,
		LastUpdated:      baseTime,
	})
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine(EngineConfig{})

	assert.Equal(t, 30*time.Minute, e.Config().StaleAfter)
	assert.Equal(t, 5, e.Config().Bins.MinSampleThreshold)
	assert.Equal(t, 0.33, e.Config().Performance.DefaultWeight)
	require.NotNil(t, e.Snapshot())
	assert.Len(t, e.Snapshot().Bins.Bins, BinCount)
	assert.True(t, e.IsCalibrationStale())
}

func TestCalibrateWithoutHistoryIsIdentity(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		raw      float64
		expected float64
	}{
		{raw: 70, expected: 70},
		{raw: 52.5, expected: 52.5},
		{raw: 30, expected: 45},
		{raw: 99, expected: 95},
	}

	for _, tt := range tests {
		result := e.Calibrate(tt.raw, "unknown")
		assert.Equal(t, tt.expected, result.AdjustedConfidence)
		assert.False(t, result.WasAdjusted)
		assert.Equal(t, 1.0, result.Multiplier)
		assert.False(t, result.SourcePaused)
	}
}

func TestCalibrateAppliesBinFactor(t *testing.T) {
	e := newTestEngine()
	e.Refresh(makeRecords("sourceX", 73, 2, 4), 30)

	result := e.Calibrate(73, "sourceX")

	// Six settled bets is below the per-source minimum, so only the bin corrects
	assert.Equal(t, 1.0, result.SourceMultiplier)
	assert.InDelta(t, 0.70, result.BinFactor, 1e-9)
	assert.InDelta(t, 51.1, result.AdjustedConfidence, 1e-9)
	assert.Equal(t, "70-74", result.BinLabel)
	assert.Equal(t, 6, result.BinSampleSize)
	assert.True(t, result.WasAdjusted)
}

func TestCalibrateSourceMultiplierSelectsBin(t *testing.T) {
	e := newTestEngine()
	withSources(e, models.SourcePerformance{SourceID: "hot", ConfidenceMultiplier: 1.10, AdjustedWeight: 0.495})

	result := e.Calibrate(68, "hot")

	assert.InDelta(t, 74.8, result.AdjustedConfidence, 1e-9)
	assert.Equal(t, "70-74", result.BinLabel)
	assert.InDelta(t, 1.10, result.Multiplier, 1e-9)
}

func TestCalibrateOutputIsAlwaysWithinBand(t *testing.T) {
	e := newTestEngine()
	records := append(makeRecords("a", 58, 9, 1), makeRecords("a", 88, 1, 9)...)
	e.Refresh(records, 30)
	withMult := *e.Snapshot()
	withMult.Sources = map[string]models.SourcePerformance{
		"low":  {SourceID: "low", ConfidenceMultiplier: 0.80, AdjustedWeight: 0.165},
		"high": {SourceID: "high", ConfidenceMultiplier: 1.10, AdjustedWeight: 0.495},
	}
	e.snapshot.Store(&withMult)

	rng := rand.New(rand.NewSource(42))
	sources := []string{"low", "high", "a", "unknown"}
	specials := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1000, 0, 1000}

	for i := 0; i < 2000; i++ {
		raw := rng.Float64()*300 - 100
		if i < len(specials) {
			raw = specials[i]
		}
		result := e.Calibrate(raw, sources[i%len(sources)])
		assert.GreaterOrEqual(t, result.AdjustedConfidence, MinPresentedConfidence)
		assert.LessOrEqual(t, result.AdjustedConfidence, MaxPresentedConfidence)
	}
}

func TestConsensusExcludesPausedSource(t *testing.T) {
	e := newTestEngine()
	withSources(e,
		models.SourcePerformance{SourceID: "A", ConfidenceMultiplier: 1, AdjustedWeight: 0.4},
		models.SourcePerformance{SourceID: "B", ConfidenceMultiplier: 1, AdjustedWeight: 0.4},
		models.SourcePerformance{SourceID: "C", ConfidenceMultiplier: 1, AdjustedWeight: 0, IsPaused: true},
	)

	result := e.Consensus([]SourcePrediction{
		{SourceID: "A", Pick: "home", Confidence: 80},
		{SourceID: "B", Pick: "away", Confidence: 75},
		{SourceID: "C", Pick: "away", Confidence: 90},
	})

	assert.Equal(t, "home", result.Pick)
	assert.InDelta(t, 80.0, result.Confidence, 1e-9)
	assert.False(t, result.IsHighConsensus)
	assert.False(t, result.IsTie)
	assert.Equal(t, 2, result.ActiveSources)
	assert.Equal(t, []string{"C"}, result.ExcludedSources)
	assert.NotContains(t, result.Weights, "C")
	require.Len(t, result.Groups, 2)
	assert.InDelta(t, 75.0, result.Groups[1].WeightedConfidence, 1e-9)
}

func TestConsensusExcludesNearZeroWeight(t *testing.T) {
	e := newTestEngine()
	withSources(e,
		models.SourcePerformance{SourceID: "A", ConfidenceMultiplier: 1, AdjustedWeight: 0.4},
		models.SourcePerformance{SourceID: "dust", ConfidenceMultiplier: 1, AdjustedWeight: 0.0005},
	)

	result := e.Consensus([]SourcePrediction{
		{SourceID: "A", Pick: "home", Confidence: 60},
		{SourceID: "dust", Pick: "away", Confidence: 95},
	})

	assert.Equal(t, "home", result.Pick)
	assert.Equal(t, []string{"dust"}, result.ExcludedSources)
}

func TestConsensusHighAgreement(t *testing.T) {
	e := newTestEngine()

	result := e.Consensus([]SourcePrediction{
		{SourceID: "x", Pick: "home", Confidence: 70},
		{SourceID: "y", Pick: "home", Confidence: 60},
	})

	assert.Equal(t, "home", result.Pick)
	assert.InDelta(t, 65.0, result.Confidence, 1e-9)
	assert.True(t, result.IsHighConsensus)
	assert.InDelta(t, 0.33, result.Weights["x"], 1e-9)
}

func TestConsensusSingleSourceIsNotHighConsensus(t *testing.T) {
	e := newTestEngine()

	result := e.Consensus([]SourcePrediction{{SourceID: "x", Pick: "home", Confidence: 70}})

	assert.Equal(t, "home", result.Pick)
	assert.False(t, result.IsHighConsensus)
}

func TestConsensusTieBreaking(t *testing.T) {
	e := newTestEngine()

	t.Run("equal weight falls back to pick order", func(t *testing.T) {
		result := e.Consensus([]SourcePrediction{
			{SourceID: "x", Pick: "home", Confidence: 70},
			{SourceID: "y", Pick: "away", Confidence: 70},
		})
		assert.Equal(t, "away", result.Pick)
		assert.True(t, result.IsTie)
	})

	t.Run("heavier group wins", func(t *testing.T) {
		result := e.Consensus([]SourcePrediction{
			{SourceID: "x", Pick: "home", Confidence: 70},
			{SourceID: "z", Pick: "home", Confidence: 70},
			{SourceID: "y", Pick: "away", Confidence: 70},
		})
		assert.Equal(t, "home", result.Pick)
		assert.True(t, result.IsTie)
	})

	t.Run("order of input does not matter", func(t *testing.T) {
		first := e.Consensus([]SourcePrediction{
			{SourceID: "x", Pick: "home", Confidence: 70},
			{SourceID: "y", Pick: "away", Confidence: 70},
		})
		second := e.Consensus([]SourcePrediction{
			{SourceID: "y", Pick: "away", Confidence: 70},
			{SourceID: "x", Pick: "home", Confidence: 70},
		})
		assert.Equal(t, first.Pick, second.Pick)
	})
}

func TestConsensusWithNoActiveSources(t *testing.T) {
	e := newTestEngine()
	withSources(e, models.SourcePerformance{SourceID: "C", IsPaused: true})

	empty := e.Consensus(nil)
	assert.Empty(t, empty.Pick)
	assert.Equal(t, 0, empty.ActiveSources)

	allPaused := e.Consensus([]SourcePrediction{{SourceID: "C", Pick: "home", Confidence: 80}})
	assert.Empty(t, allPaused.Pick)
	assert.Equal(t, 0.0, allPaused.Confidence)
	assert.Equal(t, []string{"C"}, allPaused.ExcludedSources)
}

func TestStaleness(t *testing.T) {
	e := newTestEngine()
	assert.True(t, e.IsCalibrationStale())

	e.Refresh(makeRecords("a", 60, 3, 3), 30)
	assert.False(t, e.IsCalibrationStale())

	e.now = func() time.Time { return baseTime.Add(29 * time.Minute) }
	assert.False(t, e.IsCalibrationStale())

	e.now = func() time.Time { return baseTime.Add(31 * time.Minute) }
	assert.True(t, e.IsCalibrationStale())
	assert.True(t, e.Summary().IsStale)
}

func TestPartialUpdatesPreserveOtherTable(t *testing.T) {
	e := newTestEngine()
	records := makeRecords("sourceX", 73, 2, 4)

	e.UpdatePerformance(records, 30)
	require.Contains(t, e.Snapshot().Sources, "sourceX")
	assert.True(t, e.Snapshot().BinsUpdatedAt.IsZero())

	e.UpdateBinCalibration(records)
	snap := e.Snapshot()
	assert.Contains(t, snap.Sources, "sourceX")
	assert.Equal(t, baseTime, snap.BinsUpdatedAt)
	assert.InDelta(t, 0.70, snap.Bins.Bins[4].AdjustmentFactor, 1e-9)
}

func TestSummary(t *testing.T) {
	e := newTestEngine()

	idle := e.Summary()
	assert.False(t, idle.IsActive)
	assert.True(t, idle.IsStale)
	assert.Equal(t, BinCount, idle.TotalBins)

	records := sequence("cold", 40, "WLLWLLWLLWLLWLLWLLLL")
	records = append(records, sequence("warm", 55, "WWWLWWWLWWWL")...)
	records = append(records, makeRecords("warm", 73, 2, 4)...)
	e.Refresh(records, 30)

	summary := e.Summary()
	assert.True(t, summary.IsActive)
	assert.False(t, summary.IsStale)
	assert.Equal(t, 2, summary.TotalSources)
	assert.Equal(t, 1, summary.PausedSources)
	assert.Equal(t, []string{"cold"}, summary.PausedSourceIDs)
	assert.GreaterOrEqual(t, summary.AdjustedSources, 1)
	assert.Equal(t, 2, summary.AdjustedBins)
}

func TestConcurrentReadsDuringRefresh(t *testing.T) {
	e := newTestEngine()
	histories := [][]models.PredictionRecord{
		makeRecords("a", 73, 2, 4),
		makeRecords("a", 73, 5, 1),
		append(makeRecords("a", 88, 9, 1), makeRecords("b", 61, 1, 9)...),
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				result := e.Calibrate(73, "a")
				if result.AdjustedConfidence < MinPresentedConfidence || result.AdjustedConfidence > MaxPresentedConfidence {
					t.Errorf("confidence out of band: %f", result.AdjustedConfidence)
					return
				}
				snap := e.Snapshot()
				if len(snap.Bins.Bins) != BinCount {
					t.Errorf("torn snapshot with %d bins", len(snap.Bins.Bins))
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		e.Refresh(histories[i%len(histories)], 30)
		e.UpdateBinCalibration(histories[(i+1)%len(histories)])
	}
	close(stop)
	wg.Wait()
}

func TestRestorePublishesSnapshot(t *testing.T) {
	e := newTestEngine()
	bins := NeutralBinAnalysis()
	bins.Bins[3].AdjustmentFactor = 0.9
	perf := NeutralPerformance("alpha", 0.5)

	restored := e.Restore(Snapshot{
		Bins:        bins,
		Sources:     map[string]models.SourcePerformance{"alpha": perf},
		LastUpdated: baseTime.Add(-5 * time.Minute),
	})

	require.NotNil(t, restored)
	assert.Same(t, restored, e.Snapshot())
	assert.Equal(t, 0.9, e.Snapshot().Bins.Bins[3].AdjustmentFactor)
	got, ok := e.Snapshot().Source("alpha")
	require.True(t, ok)
	assert.Equal(t, 0.5, got.AdjustedWeight)
	assert.False(t, e.IsCalibrationStale())
}

func TestRestoreRepairsMalformedSnapshot(t *testing.T) {
	e := newTestEngine()

	restored := e.Restore(Snapshot{LastUpdated: baseTime})

	assert.Len(t, restored.Bins.Bins, BinCount)
	assert.NotNil(t, restored.Sources)
	assert.Equal(t, 0, e.Summary().TotalSources)
}
