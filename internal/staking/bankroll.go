package staking

import (
	"github.com/shopspring/decimal"
)

// SimulatedBet is one settled prediction replayed through the stake sizer
type SimulatedBet struct {
	Confidence float64 `json:"confidence"`
	Odds       float64 `json:"odds"`
	Won        bool    `json:"won"`
}

// BankrollResult summarises a bankroll replay
type BankrollResult struct {
	Initial     decimal.Decimal `json:"initial"`
	Final       decimal.Decimal `json:"final"`
	Peak        decimal.Decimal `json:"peak"`
	TotalStaked decimal.Decimal `json:"total_staked"`
	MaxDrawdown float64         `json:"max_drawdown"`
	Bets        int             `json:"bets"`
	Placed      int             `json:"placed"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	ROI         float64         `json:"roi"`
}

// SimulateBankroll replays bets in order, sizing each from the running bankroll
func SimulateBankroll(bets []SimulatedBet, cfg Config, initial decimal.Decimal) BankrollResult {
	result := BankrollResult{
		Initial:     initial,
		Final:       initial,
		Peak:        initial,
		TotalStaked: decimal.Zero,
		Bets:        len(bets),
	}

	bankroll := initial
	for _, bet := range bets {
		suggestion := SuggestStake(bet.Confidence, bet.Odds, bankroll, cfg)
		if !suggestion.HasStake() {
			continue
		}
		stake := suggestion.Stake
		if stake.GreaterThan(bankroll) {
			stake = bankroll
		}

		result.Placed++
		result.TotalStaked = result.TotalStaked.Add(stake)
		if bet.Won {
			result.Wins++
			bankroll = bankroll.Add(stake.Mul(decimal.NewFromFloat(bet.Odds).Sub(one)))
		} else {
			result.Losses++
			bankroll = bankroll.Sub(stake)
		}

		if bankroll.GreaterThan(result.Peak) {
			result.Peak = bankroll
		}
		if result.Peak.GreaterThan(decimal.Zero) {
			dd, _ := result.Peak.Sub(bankroll).Div(result.Peak).Float64()
			if dd > result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
	}

	result.Final = bankroll
	if result.TotalStaked.GreaterThan(decimal.Zero) {
		result.ROI, _ = bankroll.Sub(initial).Div(result.TotalStaked).Float64()
	}
	return result
}
