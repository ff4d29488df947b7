package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/clever-calibrator/internal/models"
)

// PredictionSource is anything that can return the prediction history since a point in time
type PredictionSource interface {
	FetchPredictions(ctx context.Context, since time.Time) ([]models.PredictionRecord, error)
}

// PredictionRepository defines the interface for prediction history access
type PredictionRepository interface {
	PredictionSource
	Insert(ctx context.Context, prediction *models.PredictionRecord) error
	InsertBatch(ctx context.Context, predictions []models.PredictionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PredictionRecord, error)
	GetBySource(ctx context.Context, sourceID string, since time.Time) ([]models.PredictionRecord, error)
	Settle(ctx context.Context, id uuid.UUID, outcome models.Outcome) error
}

// SnapshotRepository defines persistence for calibration snapshots
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.CalibrationSnapshot) error
	GetLatest(ctx context.Context) (*models.CalibrationSnapshot, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
