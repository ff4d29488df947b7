package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome represents the settlement state of a prediction
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
)

// IsSettled reports whether the outcome is final
func (o Outcome) IsSettled() bool {
	return o == OutcomeWon || o == OutcomeLost
}

// IsValid reports whether the outcome is one of the known states
func (o Outcome) IsValid() bool {
	return o == OutcomePending || o.IsSettled()
}

// CanTransitionTo reports whether a record may move from o to next.
// Only pending records settle, and settlement never reverses.
func (o Outcome) CanTransitionTo(next Outcome) bool {
	return o == OutcomePending && next.IsSettled()
}

// PredictionRecord is one historical prediction made by one source for one match
type PredictionRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	SourceID      string    `db:"source_id" json:"source_id" validate:"required"`
	MatchID       string    `db:"match_id" json:"match_id" validate:"required"`
	League        string    `db:"league" json:"league"`
	ConfidenceRaw float64   `db:"confidence_raw" json:"confidence_raw" validate:"gte=0,lte=100"`
	Outcome       Outcome   `db:"outcome" json:"outcome" validate:"required,oneof=pending won lost"`
	PredictedAt   time.Time `db:"predicted_at" json:"predicted_at" validate:"required"`
}

// IsSettled checks if the prediction has been settled
func (p *PredictionRecord) IsSettled() bool {
	return p.Outcome.IsSettled()
}

// IsWin checks if the prediction was settled as a win
func (p *PredictionRecord) IsWin() bool {
	return p.Outcome == OutcomeWon
}

// Settle moves a pending record to a final outcome
func (p *PredictionRecord) Settle(outcome Outcome) error {
	if p.Outcome.IsSettled() {
		return ErrAlreadySettled
	}
	if !p.Outcome.CanTransitionTo(outcome) {
		return ErrInvalidOutcome
	}
	p.Outcome = outcome
	return nil
}
