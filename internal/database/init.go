package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/clever-calibrator/internal/config"
)

// schemaStatements creates the prediction history and snapshot tables when missing
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		id             UUID PRIMARY KEY,
		source_id      TEXT NOT NULL,
		match_id       TEXT NOT NULL,
		league         TEXT NOT NULL DEFAULT '',
		confidence_raw DOUBLE PRECISION NOT NULL,
		outcome        TEXT NOT NULL DEFAULT 'pending' CHECK (outcome IN ('pending', 'won', 'lost')),
		predicted_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_predicted_at ON predictions (predicted_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_source ON predictions (source_id, predicted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS calibration_snapshots (
		id                        UUID PRIMARY KEY,
		computed_at               TIMESTAMPTZ NOT NULL,
		record_count              INTEGER NOT NULL,
		is_calibrated             BOOLEAN NOT NULL,
		overall_adjustment_factor DOUBLE PRECISION NOT NULL,
		bins                      JSONB NOT NULL,
		sources                   JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calibration_snapshots_computed_at ON calibration_snapshots (computed_at DESC)`,
}

// Initialize creates a database connection pool and ensures the schema exists
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema applies the idempotent schema statements in one transaction
func (db *DB) EnsureSchema(ctx context.Context) error {
	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
