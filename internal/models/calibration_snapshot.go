package models

import (
	"time"

	"github.com/google/uuid"
)

// CalibrationSnapshot is the persisted copy of one refresh, kept for audit and warm starts
type CalibrationSnapshot struct {
	ID                      uuid.UUID           `db:"id" json:"id"`
	ComputedAt              time.Time           `db:"computed_at" json:"computed_at"`
	RecordCount             int                 `db:"record_count" json:"record_count"`
	IsCalibrated            bool                `db:"is_calibrated" json:"is_calibrated"`
	OverallAdjustmentFactor float64             `db:"overall_adjustment_factor" json:"overall_adjustment_factor"`
	Bins                    []CalibrationBin    `db:"bins" json:"bins"`
	Sources                 []SourcePerformance `db:"sources" json:"sources"`
}
