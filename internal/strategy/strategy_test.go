package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/valuation"
)

const mintA = "MintA111111111111111111111111111111111111"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// makePosition builds a position bought for invested base units.
func makePosition(qty, invested string) *domain.Position {
	p := domain.NewPosition(mintA, 6)
	p.TotalQuantity = d(qty)
	p.TotalInvested = d(invested)
	p.AvgCostBasis = p.TotalInvested.Div(p.TotalQuantity)
	return p
}

func makeRule(tp, sl, sell string) *domain.TradingRule {
	return &domain.TradingRule{
		Mint:           mintA,
		Strategy:       domain.DefaultStrategy,
		TakeProfitPct:  d(tp),
		StopLossPct:    d(sl),
		SellPercentage: d(sell),
		Enabled:        true,
	}
}

// valueAtPct prices p so its unrealized PnL is exactly pct percent.
func valueAtPct(p *domain.Position, pct string) *domain.Valuation {
	factor := decimal.NewFromInt(1).Add(d(pct).Div(decimal.NewFromInt(100)))
	spot := p.AvgCostBasis.Mul(factor)
	return valuation.Valuate(p, &spot)
}

func TestTPSL_TakeProfitBoundary(t *testing.T) {
	s := NewTPSL()
	rule := makeRule("15", "-20", "100")

	tests := []struct {
		pct     string
		wantAct domain.SignalAction
		wantTrg domain.Trigger
	}{
		{"15", domain.ActionSell, domain.TriggerTakeProfit},
		{"15.0", domain.ActionSell, domain.TriggerTakeProfit},
		{"14.999", domain.ActionHold, domain.TriggerNone},
		{"80", domain.ActionSell, domain.TriggerTakeProfit},
		{"-20", domain.ActionSell, domain.TriggerStopLoss},
		{"-19.999", domain.ActionHold, domain.TriggerNone},
		{"-60", domain.ActionSell, domain.TriggerStopLoss},
		{"0", domain.ActionHold, domain.TriggerNone},
	}

	for _, tt := range tests {
		t.Run(tt.pct, func(t *testing.T) {
			p := makePosition("1000", "1")
			sig := s.Evaluate(p, valueAtPct(p, tt.pct), rule)

			if sig.Action != tt.wantAct {
				t.Errorf("action = %s, want %s (pnl %s)", sig.Action, tt.wantAct, sig.CurrentPnLPct)
			}
			if sig.Trigger != tt.wantTrg {
				t.Errorf("trigger = %q, want %q", sig.Trigger, tt.wantTrg)
			}
			if tt.wantAct == domain.ActionSell && !sig.QuantityToSell.Equal(d("1000")) {
				t.Errorf("quantity = %s, want 1000", sig.QuantityToSell)
			}
			if tt.wantAct == domain.ActionHold && sig.IsSell() {
				t.Error("hold signal reports IsSell")
			}
		})
	}
}

func TestTPSL_TakeProfitCheckedFirst(t *testing.T) {
	// Overlapping thresholds: -7% meets both.
	rule := makeRule("-10", "-5", "100")

	p := makePosition("100", "1")
	sig := NewTPSL().Evaluate(p, valueAtPct(p, "-7"), rule)
	if sig.Trigger != domain.TriggerTakeProfit {
		t.Errorf("trigger = %q, want TAKE_PROFIT", sig.Trigger)
	}
}

func TestTPSL_PartialSell(t *testing.T) {
	p := makePosition("1000", "1")
	sig := NewTPSL().Evaluate(p, valueAtPct(p, "50"), makeRule("15", "-20", "12.34567891"))

	if !sig.IsSell() {
		t.Fatalf("expected sell, got %s (%s)", sig.Action, sig.Reason)
	}
	// 1000 * 12.34567891 / 100 = 123.4567891, truncated to 6 decimals.
	if !sig.QuantityToSell.Equal(d("123.456789")) {
		t.Errorf("quantity = %s, want 123.456789", sig.QuantityToSell)
	}
	if !sig.CurrentPnLBase.Equal(d("0.5")) {
		t.Errorf("pnl base = %s, want 0.5", sig.CurrentPnLBase)
	}
}

func TestTPSL_HoldReasons(t *testing.T) {
	s := NewTPSL()
	rule := makeRule("15", "-20", "100")

	open := makePosition("1000", "1")
	priced := valueAtPct(open, "50")

	unsynced := domain.NewPosition(mintA, 6)
	unsynced.TotalQuantity = d("1000")

	closed := domain.NewPosition(mintA, 6)

	base := domain.NewPosition(domain.BaseMint, domain.BaseDecimals)
	base.TotalQuantity = d("2")
	base.AvgCostBasis = d("1")
	base.TotalInvested = d("2")

	disabled := makeRule("15", "-20", "100")
	disabled.Enabled = false

	tests := []struct {
		name   string
		pos    *domain.Position
		val    *domain.Valuation
		rule   *domain.TradingRule
		reason string
	}{
		{"base mint", base, priced, rule, ReasonBaseCurrency},
		{"closed", closed, priced, rule, ReasonClosed},
		{"zero cost basis", unsynced, priced, rule, ReasonNoCostBasis},
		{"unpriced", open, valuation.Valuate(open, nil), rule, ReasonUnpriced},
		{"nil valuation", open, nil, rule, ReasonUnpriced},
		{"no rule", open, priced, nil, ReasonNoRule},
		{"disabled", open, priced, disabled, ReasonDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.Evaluate(tt.pos, tt.val, tt.rule)
			if sig.Action != domain.ActionHold {
				t.Errorf("action = %s, want HOLD", sig.Action)
			}
			if sig.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", sig.Reason, tt.reason)
			}
		})
	}
}

func TestQuantityToSell(t *testing.T) {
	p := makePosition("10", "1")
	p.Decimals = 0

	if got := QuantityToSell(p, d("100")); !got.Equal(d("10")) {
		t.Errorf("100%% = %s, want 10", got)
	}
	if got := QuantityToSell(p, d("33")); !got.Equal(d("3")) {
		t.Errorf("33%% = %s, want 3", got)
	}
	if got := QuantityToSell(p, d("5")); !got.IsZero() {
		t.Errorf("5%% = %s, want 0", got)
	}
}

func TestTPSL_RoundsToZeroHolds(t *testing.T) {
	p := makePosition("10", "1")
	p.Decimals = 0

	sig := NewTPSL().Evaluate(p, valueAtPct(p, "50"), makeRule("15", "-20", "5"))
	if sig.Action != domain.ActionHold {
		t.Errorf("action = %s, want HOLD", sig.Action)
	}
}
