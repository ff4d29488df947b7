package models

import "time"

// SourcePerformance represents rolling performance metrics for one prediction source
type SourcePerformance struct {
	SourceID              string    `db:"source_id" json:"source_id" validate:"required"`
	WindowDays            int       `db:"window_days" json:"window_days" validate:"gt=0"`
	TotalBets             int       `db:"total_bets" json:"total_bets" validate:"gte=0"`
	Wins                  int       `db:"wins" json:"wins" validate:"gte=0"`
	Losses                int       `db:"losses" json:"losses" validate:"gte=0"`
	Pending               int       `db:"pending" json:"pending" validate:"gte=0"`
	WinRate               float64   `db:"win_rate" json:"win_rate"`
	ExpectedWinRate       float64   `db:"expected_win_rate" json:"expected_win_rate"`
	PerformanceVsExpected float64   `db:"performance_vs_expected" json:"performance_vs_expected"`
	Streak                int       `db:"streak" json:"streak"`
	IsUnderperforming     bool      `db:"is_underperforming" json:"is_underperforming"`
	IsOverperforming      bool      `db:"is_overperforming" json:"is_overperforming"`
	IsPaused              bool      `db:"is_paused" json:"is_paused"`
	PauseReason           string    `db:"pause_reason" json:"pause_reason,omitempty"`
	ConfidenceMultiplier  float64   `db:"confidence_multiplier" json:"confidence_multiplier"`
	AdjustedWeight        float64   `db:"adjusted_weight" json:"adjusted_weight" validate:"gte=0"`
	HealthScore           float64   `db:"health_score" json:"health_score" validate:"gte=0,lte=100"`
	ComputedAt            time.Time `db:"computed_at" json:"computed_at"`
}

// IsAdjusted reports whether the source applies a non-identity confidence correction
func (sp *SourcePerformance) IsAdjusted() bool {
	return sp.ConfidenceMultiplier != 1.0
}
