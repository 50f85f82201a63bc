package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStrategy is the strategy name of take-profit/stop-loss rules.
const DefaultStrategy = "tp_sl"

// TradingRule holds exit thresholds for a mint.
// An empty Mint marks the global default rule.
type TradingRule struct {
	Mint           string
	Strategy       string
	TakeProfitPct  decimal.Decimal // e.g. 15 for +15%
	StopLossPct    decimal.Decimal // negative, e.g. -20
	SellPercentage decimal.Decimal // (0, 100]
	Enabled        bool
	UpdatedAt      time.Time
}

// IsDefault reports whether the rule is the global default.
func (r *TradingRule) IsDefault() bool {
	return r.Mint == ""
}

var hundred = decimal.NewFromInt(100)

// Validate checks threshold ranges.
func (r *TradingRule) Validate() error {
	if r.Strategy == "" {
		return fmt.Errorf("rule: strategy is required")
	}
	if !r.TakeProfitPct.IsPositive() {
		return fmt.Errorf("rule: take profit must be positive, got %s", r.TakeProfitPct)
	}
	if !r.StopLossPct.IsNegative() {
		return fmt.Errorf("rule: stop loss must be negative, got %s", r.StopLossPct)
	}
	if !r.SellPercentage.IsPositive() || r.SellPercentage.GreaterThan(hundred) {
		return fmt.Errorf("rule: sell percentage must be in (0, 100], got %s", r.SellPercentage)
	}
	return nil
}
