package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/clever-calibrator/internal/database"
	"github.com/yourusername/clever-calibrator/internal/models"
)

const testDatabaseURLEnv = "CALIBRATOR_TEST_DATABASE_URL"

func TestNewRepositoriesRequiresDB(t *testing.T) {
	repos, err := NewRepositories(nil)
	assert.Error(t, err)
	assert.Nil(t, repos)
}

func TestSettleRejectsNonFinalOutcome(t *testing.T) {
	repo := NewPostgresPredictionRepository(nil)

	err := repo.Settle(context.Background(), uuid.New(), models.OutcomePending)
	assert.ErrorIs(t, err, models.ErrInvalidOutcome)

	err = repo.Settle(context.Background(), uuid.New(), models.Outcome("void"))
	assert.ErrorIs(t, err, models.ErrInvalidOutcome)
}

func TestInsertValidatesBeforeWriting(t *testing.T) {
	repo := NewPostgresPredictionRepository(nil)

	err := repo.Insert(context.Background(), &models.PredictionRecord{
		SourceID:      "alpha",
		ConfidenceRaw: 140,
		Outcome:       models.OutcomePending,
		PredictedAt:   time.Now(),
	})
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestInsertBatchEmptyIsNoop(t *testing.T) {
	repo := NewPostgresPredictionRepository(nil)
	assert.NoError(t, repo.InsertBatch(context.Background(), nil))
}

func TestSnapshotEncoding(t *testing.T) {
	snapshot := &models.CalibrationSnapshot{
		Bins: []models.CalibrationBin{
			{Index: 4, Label: "70-74", ExpectedWinRate: 72, SampleSize: 6, AdjustmentFactor: 0.7},
		},
		Sources: []models.SourcePerformance{
			{SourceID: "alpha", TotalBets: 12, IsPaused: true, PauseReason: "losing_streak"},
		},
	}

	bins, sources, err := encodeSnapshot(snapshot)
	require.NoError(t, err)

	decoded := &models.CalibrationSnapshot{}
	require.NoError(t, decodeSnapshot(decoded, bins, sources))
	assert.Equal(t, snapshot.Bins, decoded.Bins)
	assert.Equal(t, "alpha", decoded.Sources[0].SourceID)
	assert.True(t, decoded.Sources[0].IsPaused)

	assert.Error(t, decodeSnapshot(decoded, []byte("{"), sources))
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("Integration test - set %s to run", testDatabaseURLEnv)
	}

	ctx := context.Background()
	db, err := database.NewDBFromURL(ctx, url)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))

	t.Cleanup(func() {
		_, _ = db.GetPool().Exec(ctx, "TRUNCATE predictions, calibration_snapshots")
		db.Close()
	})
	return db
}

func TestPredictionRepositoryLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repos, err := NewRepositories(db)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	pred := &models.PredictionRecord{
		SourceID:      "alpha",
		MatchID:       "match-1",
		League:        "nba",
		ConfidenceRaw: 73,
		Outcome:       models.OutcomePending,
		PredictedAt:   now.Add(-time.Hour),
	}
	require.NoError(t, repos.Prediction.Insert(ctx, pred))
	require.NotEqual(t, uuid.Nil, pred.ID)

	batch := []models.PredictionRecord{
		{SourceID: "beta", MatchID: "match-1", ConfidenceRaw: 61, Outcome: models.OutcomeWon, PredictedAt: now.Add(-2 * time.Hour)},
		{SourceID: "beta", MatchID: "match-2", ConfidenceRaw: 58, Outcome: models.OutcomeLost, PredictedAt: now.Add(-30 * 24 * time.Hour)},
	}
	require.NoError(t, repos.Prediction.InsertBatch(ctx, batch))

	recent, err := repos.Prediction.FetchPredictions(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "beta", recent[0].SourceID)

	require.NoError(t, repos.Prediction.Settle(ctx, pred.ID, models.OutcomeWon))
	assert.ErrorIs(t, repos.Prediction.Settle(ctx, pred.ID, models.OutcomeLost), models.ErrAlreadySettled)
	assert.ErrorIs(t, repos.Prediction.Settle(ctx, uuid.New(), models.OutcomeLost), models.ErrNotFound)

	stored, err := repos.Prediction.GetByID(ctx, pred.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWon, stored.Outcome)

	bySource, err := repos.Prediction.GetBySource(ctx, "beta", now.Add(-60*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, bySource, 2)
}

func TestSnapshotRepositoryLatest(t *testing.T) {
	db := setupTestDB(t)
	repos, err := NewRepositories(db)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = repos.Snapshot.GetLatest(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	older := &models.CalibrationSnapshot{ComputedAt: time.Now().Add(-2 * time.Hour), RecordCount: 3, OverallAdjustmentFactor: 1}
	newer := &models.CalibrationSnapshot{ComputedAt: time.Now(), RecordCount: 9, IsCalibrated: true, OverallAdjustmentFactor: 0.93}
	require.NoError(t, repos.Snapshot.Save(ctx, older))
	require.NoError(t, repos.Snapshot.Save(ctx, newer))

	latest, err := repos.Snapshot.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.Equal(t, 9, latest.RecordCount)

	removed, err := repos.Snapshot.PruneBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
