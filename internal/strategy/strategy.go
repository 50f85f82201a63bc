// Package strategy turns a valued position and its rule into an exit signal.
package strategy

import (
	"solana-pnl-bot/internal/domain"
)

// Evaluator decides whether a position should be exited.
type Evaluator interface {
	// Evaluate returns a HOLD or SELL signal. It never fails: any input it
	// cannot act on yields HOLD with a reason.
	Evaluate(p *domain.Position, v *domain.Valuation, rule *domain.TradingRule) *domain.TradingSignal

	// ID returns the strategy name stored on rules.
	ID() string
}

// Hold reasons.
const (
	ReasonBaseCurrency = "base currency"
	ReasonClosed       = "position closed"
	ReasonNoCostBasis  = "cost basis unknown"
	ReasonUnpriced     = "no spot price"
	ReasonNoRule       = "no rule"
	ReasonDisabled     = "rule disabled"
	ReasonInRange      = "within thresholds"
)

func hold(p *domain.Position, strategy, reason string) *domain.TradingSignal {
	return &domain.TradingSignal{
		Mint:     p.Mint,
		Strategy: strategy,
		Action:   domain.ActionHold,
		Reason:   reason,
	}
}
