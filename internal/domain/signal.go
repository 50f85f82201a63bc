package domain

import "github.com/shopspring/decimal"

// SignalAction is the evaluator decision.
type SignalAction string

const (
	ActionHold SignalAction = "HOLD"
	ActionSell SignalAction = "SELL"
)

// Trigger names the threshold that fired.
type Trigger string

const (
	TriggerNone       Trigger = ""
	TriggerTakeProfit Trigger = "TAKE_PROFIT"
	TriggerStopLoss   Trigger = "STOP_LOSS"
)

// String returns the string representation of Trigger.
func (t Trigger) String() string {
	return string(t)
}

// TradingSignal is produced per position per cycle and consumed immediately.
type TradingSignal struct {
	Mint           string
	Strategy       string
	Action         SignalAction
	Trigger        Trigger
	QuantityToSell decimal.Decimal
	CurrentPnLPct  decimal.Decimal
	CurrentPnLBase decimal.Decimal
	Reason         string
}

// IsSell reports whether the signal requests an exit.
func (s *TradingSignal) IsSell() bool {
	return s.Action == ActionSell && s.QuantityToSell.IsPositive()
}
