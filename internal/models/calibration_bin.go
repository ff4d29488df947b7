package models

// CalibrationBin is a derived aggregate over one fixed-width confidence range.
// It is recomputed wholesale on every refresh and never persisted as source of truth.
type CalibrationBin struct {
	Index            int     `db:"bin_index" json:"index"`
	MinConfidence    float64 `db:"min_confidence" json:"min_confidence"`
	MaxConfidence    float64 `db:"max_confidence" json:"max_confidence"`
	Label            string  `db:"label" json:"label"`
	ExpectedWinRate  float64 `db:"expected_win_rate" json:"expected_win_rate"`
	SampleSize       int     `db:"sample_size" json:"sample_size"`
	Wins             int     `db:"wins" json:"wins"`
	Losses           int     `db:"losses" json:"losses"`
	PendingCount     int     `db:"pending_count" json:"pending_count"`
	ActualWinRate    float64 `db:"actual_win_rate" json:"actual_win_rate"`
	CalibrationError float64 `db:"calibration_error" json:"calibration_error"`
	IsOverconfident  bool    `db:"is_overconfident" json:"is_overconfident"`
	IsUnderconfident bool    `db:"is_underconfident" json:"is_underconfident"`
	AdjustmentFactor float64 `db:"adjustment_factor" json:"adjustment_factor"`
}

// Contains reports whether a confidence value falls inside the bin's range.
// Ranges are half-open on the upper side except for the final bin.
func (b *CalibrationBin) Contains(confidence float64) bool {
	if b.MinConfidence == b.MaxConfidence {
		return confidence == b.MinConfidence
	}
	return confidence >= b.MinConfidence && confidence < b.MaxConfidence+1
}

// IsProblematic reports whether the bin is miscalibrated with enough data to matter
func (b *CalibrationBin) IsProblematic(minSamples int) bool {
	return b.SampleSize >= minSamples && (b.IsOverconfident || b.IsUnderconfident)
}

// IsAdjusted reports whether the bin applies a non-identity correction
func (b *CalibrationBin) IsAdjusted() bool {
	return b.AdjustmentFactor != 1.0
}
