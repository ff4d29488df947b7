package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/clever-calibrator/internal/database"
	"github.com/yourusername/clever-calibrator/internal/models"
)

// PostgresSnapshotRepository implements SnapshotRepository for PostgreSQL
type PostgresSnapshotRepository struct {
	db *database.DB
}

// NewPostgresSnapshotRepository creates a new snapshot repository
func NewPostgresSnapshotRepository(db *database.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

// Save stores a snapshot, assigning an ID when missing
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot *models.CalibrationSnapshot) error {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}

	bins, sources, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO calibration_snapshots (id, computed_at, record_count, is_calibrated,
		                                   overall_adjustment_factor, bins, sources)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.GetPool().Exec(ctx, query,
		snapshot.ID, snapshot.ComputedAt, snapshot.RecordCount, snapshot.IsCalibrated,
		snapshot.OverallAdjustmentFactor, bins, sources,
	)
	if err != nil {
		return fmt.Errorf("failed to save calibration snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recently computed snapshot
func (r *PostgresSnapshotRepository) GetLatest(ctx context.Context) (*models.CalibrationSnapshot, error) {
	query := `
		SELECT id, computed_at, record_count, is_calibrated, overall_adjustment_factor, bins, sources
		FROM calibration_snapshots
		ORDER BY computed_at DESC
		LIMIT 1
	`

	snapshot := &models.CalibrationSnapshot{}
	var bins, sources []byte
	err := r.db.GetPool().QueryRow(ctx, query).Scan(
		&snapshot.ID, &snapshot.ComputedAt, &snapshot.RecordCount, &snapshot.IsCalibrated,
		&snapshot.OverallAdjustmentFactor, &bins, &sources,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	if err := decodeSnapshot(snapshot, bins, sources); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// PruneBefore deletes snapshots computed before cutoff and returns how many were removed
func (r *PostgresSnapshotRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.GetPool().Exec(ctx, `DELETE FROM calibration_snapshots WHERE computed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func encodeSnapshot(snapshot *models.CalibrationSnapshot) ([]byte, []byte, error) {
	bins, err := json.Marshal(snapshot.Bins)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode bins: %w", err)
	}
	sources, err := json.Marshal(snapshot.Sources)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode sources: %w", err)
	}
	return bins, sources, nil
}

func decodeSnapshot(snapshot *models.CalibrationSnapshot, bins, sources []byte) error {
	if err := json.Unmarshal(bins, &snapshot.Bins); err != nil {
		return fmt.Errorf("failed to decode bins: %w", err)
	}
	if err := json.Unmarshal(sources, &snapshot.Sources); err != nil {
		return fmt.Errorf("failed to decode sources: %w", err)
	}
	return nil
}
