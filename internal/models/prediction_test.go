package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeTransitions(t *testing.T) {
	tests := []struct {
		from     Outcome
		to       Outcome
		expected bool
	}{
		{from: OutcomePending, to: OutcomeWon, expected: true},
		{from: OutcomePending, to: OutcomeLost, expected: true},
		{from: OutcomePending, to: OutcomePending, expected: false},
		{from: OutcomeWon, to: OutcomeLost, expected: false},
		{from: OutcomeLost, to: OutcomeWon, expected: false},
		{from: OutcomeWon, to: OutcomePending, expected: false},
		{from: OutcomePending, to: Outcome("void"), expected: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOutcomeValidity(t *testing.T) {
	assert.True(t, OutcomePending.IsValid())
	assert.True(t, OutcomeWon.IsValid())
	assert.False(t, Outcome("push").IsValid())
	assert.False(t, OutcomePending.IsSettled())
	assert.True(t, OutcomeLost.IsSettled())
}

func TestPredictionRecordSettle(t *testing.T) {
	rec := &PredictionRecord{SourceID: "alpha", MatchID: "m1", ConfidenceRaw: 70, Outcome: OutcomePending}

	assert.ErrorIs(t, rec.Settle(OutcomePending), ErrInvalidOutcome)
	assert.NoError(t, rec.Settle(OutcomeWon))
	assert.True(t, rec.IsSettled())
	assert.True(t, rec.IsWin())

	assert.ErrorIs(t, rec.Settle(OutcomeLost), ErrAlreadySettled)
	assert.Equal(t, OutcomeWon, rec.Outcome)
}

func TestSourcePerformanceHelpers(t *testing.T) {
	perf := SourcePerformance{TotalBets: 20, Wins: 12, Losses: 8, ConfidenceMultiplier: 1.0}

	assert.False(t, perf.IsAdjusted())

	perf.ConfidenceMultiplier = 0.95
	assert.True(t, perf.IsAdjusted())
}

func TestCalibrationBinContains(t *testing.T) {
	bin := CalibrationBin{MinConfidence: 70, MaxConfidence: 74}
	assert.True(t, bin.Contains(70))
	assert.True(t, bin.Contains(74.99))
	assert.False(t, bin.Contains(75))
	assert.False(t, bin.Contains(69.99))

	top := CalibrationBin{MinConfidence: 100, MaxConfidence: 100}
	assert.True(t, top.Contains(100))
	assert.False(t, top.Contains(99.5))
}

func TestPredictionRecordValidate(t *testing.T) {
	valid := PredictionRecord{
		SourceID:      "alpha",
		MatchID:       "m1",
		ConfidenceRaw: 72,
		Outcome:       OutcomePending,
		PredictedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *PredictionRecord)
	}{
		{name: "missing source", mutate: func(p *PredictionRecord) { p.SourceID = "" }},
		{name: "missing match", mutate: func(p *PredictionRecord) { p.MatchID = "" }},
		{name: "confidence above 100", mutate: func(p *PredictionRecord) { p.ConfidenceRaw = 101 }},
		{name: "negative confidence", mutate: func(p *PredictionRecord) { p.ConfidenceRaw = -1 }},
		{name: "unknown outcome", mutate: func(p *PredictionRecord) { p.Outcome = "void" }},
		{name: "zero timestamp", mutate: func(p *PredictionRecord) { p.PredictedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			assert.ErrorIs(t, rec.Validate(), ErrInvalidRecord)
		})
	}
}
