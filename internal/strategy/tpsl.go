package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// TPSL exits on take-profit or stop-loss thresholds.
// Take-profit is checked first; both bounds are inclusive.
type TPSL struct{}

// NewTPSL creates a take-profit/stop-loss evaluator.
func NewTPSL() *TPSL {
	return &TPSL{}
}

// ID returns the strategy identifier.
func (s *TPSL) ID() string {
	return domain.DefaultStrategy
}

// Evaluate implements Evaluator.
func (s *TPSL) Evaluate(p *domain.Position, v *domain.Valuation, rule *domain.TradingRule) *domain.TradingSignal {
	switch {
	case p.IsBase():
		return hold(p, s.ID(), ReasonBaseCurrency)
	case !p.IsOpen():
		return hold(p, s.ID(), ReasonClosed)
	case !p.AvgCostBasis.IsPositive() || !p.TotalInvested.IsPositive():
		return hold(p, s.ID(), ReasonNoCostBasis)
	case v == nil || !v.Priced:
		return hold(p, s.ID(), ReasonUnpriced)
	case rule == nil:
		return hold(p, s.ID(), ReasonNoRule)
	case !rule.Enabled:
		return hold(p, s.ID(), ReasonDisabled)
	}

	pct := v.UnrealizedPnLPct
	sig := &domain.TradingSignal{
		Mint:           p.Mint,
		Strategy:       s.ID(),
		Action:         domain.ActionHold,
		CurrentPnLPct:  pct,
		CurrentPnLBase: v.UnrealizedPnL,
	}

	switch {
	case pct.GreaterThanOrEqual(rule.TakeProfitPct):
		sig.Trigger = domain.TriggerTakeProfit
		sig.Reason = fmt.Sprintf("pnl %s%% >= take profit %s%%", pct.StringFixed(2), rule.TakeProfitPct)
	case pct.LessThanOrEqual(rule.StopLossPct):
		sig.Trigger = domain.TriggerStopLoss
		sig.Reason = fmt.Sprintf("pnl %s%% <= stop loss %s%%", pct.StringFixed(2), rule.StopLossPct)
	default:
		sig.Reason = ReasonInRange
		return sig
	}

	qty := QuantityToSell(p, rule.SellPercentage)
	if !qty.IsPositive() {
		sig.Trigger = domain.TriggerNone
		sig.Reason = "sell quantity rounds to zero"
		return sig
	}
	sig.Action = domain.ActionSell
	sig.QuantityToSell = qty
	return sig
}

// QuantityToSell returns qty*sellPct/100, truncated to the mint decimals and
// capped at the held quantity.
func QuantityToSell(p *domain.Position, sellPct decimal.Decimal) decimal.Decimal {
	if sellPct.GreaterThanOrEqual(hundred) {
		return p.TotalQuantity
	}
	qty := p.TotalQuantity.Mul(sellPct).Div(hundred)
	if p.Decimals >= 0 {
		qty = qty.Truncate(p.Decimals)
	}
	if qty.GreaterThan(p.TotalQuantity) {
		return p.TotalQuantity
	}
	return qty
}
