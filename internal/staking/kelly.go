// Package staking sizes stakes from calibrated confidence using fractional Kelly.
package staking

import (
	"github.com/shopspring/decimal"
)

// Reasons a suggestion carries no stake
const (
	ReasonInvalidOdds  = "invalid_odds"
	ReasonNoBankroll   = "no_bankroll"
	ReasonNoEdge       = "no_edge"
	ReasonBelowMinimum = "below_minimum"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Config configures stake sizing
type Config struct {
	KellyFraction float64 `mapstructure:"kelly_fraction" json:"kelly_fraction"`
	MaxStake      float64 `mapstructure:"max_stake" json:"max_stake"`
	MinStake      float64 `mapstructure:"min_stake" json:"min_stake"`
}

// DefaultConfig returns quarter Kelly with a 2.00 floor and 100.00 cap
func DefaultConfig() Config {
	return Config{
		KellyFraction: 0.25,
		MaxStake:      100,
		MinStake:      2,
	}
}

// StakeSuggestion is the sizing decision for a single bet
type StakeSuggestion struct {
	Confidence      float64         `json:"confidence"`
	Odds            float64         `json:"odds"`
	Edge            decimal.Decimal `json:"edge"`
	KellyFraction   decimal.Decimal `json:"kelly_fraction"`
	AppliedFraction decimal.Decimal `json:"applied_fraction"`
	Stake           decimal.Decimal `json:"stake"`
	Capped          bool            `json:"capped"`
	Reason          string          `json:"reason,omitempty"`
}

// HasStake reports whether a positive stake was recommended
func (s StakeSuggestion) HasStake() bool {
	return s.Stake.GreaterThan(decimal.Zero)
}

// SuggestStake applies f = (b*p - q) / b scaled by the configured fraction.
// confidence is a percentage and decimalOdds includes the returned stake.
func SuggestStake(confidence, decimalOdds float64, bankroll decimal.Decimal, cfg Config) StakeSuggestion {
	s := StakeSuggestion{
		Confidence: confidence,
		Odds:       decimalOdds,
		Stake:      decimal.Zero,
	}
	if decimalOdds <= 1 {
		s.Reason = ReasonInvalidOdds
		return s
	}
	if !bankroll.GreaterThan(decimal.Zero) {
		s.Reason = ReasonNoBankroll
		return s
	}
	if cfg.KellyFraction <= 0 {
		cfg.KellyFraction = DefaultConfig().KellyFraction
	}

	p := probability(confidence)
	odds := decimal.NewFromFloat(decimalOdds)
	b := odds.Sub(one)
	q := one.Sub(p)

	s.Edge = p.Mul(odds).Sub(one)
	s.KellyFraction = b.Mul(p).Sub(q).Div(b)
	if !s.KellyFraction.GreaterThan(decimal.Zero) {
		s.Reason = ReasonNoEdge
		return s
	}

	s.AppliedFraction = s.KellyFraction.Mul(decimal.NewFromFloat(cfg.KellyFraction))
	stake := bankroll.Mul(s.AppliedFraction).Round(2)

	if cfg.MaxStake > 0 {
		maxStake := decimal.NewFromFloat(cfg.MaxStake)
		if stake.GreaterThan(maxStake) {
			stake = maxStake
			s.Capped = true
		}
	}
	if stake.LessThan(decimal.NewFromFloat(cfg.MinStake)) {
		s.Reason = ReasonBelowMinimum
		return s
	}

	s.Stake = stake
	return s
}

func probability(confidence float64) decimal.Decimal {
	p := decimal.NewFromFloat(confidence).Div(hundred)
	if p.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if p.GreaterThan(one) {
		return one
	}
	return p
}
