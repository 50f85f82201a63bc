package strategy

import (
	"errors"
	"testing"

	"solana-pnl-bot/internal/domain"
)

type alwaysSell struct{}

func (alwaysSell) ID() string { return "always_sell" }

func (alwaysSell) Evaluate(p *domain.Position, _ *domain.Valuation, _ *domain.TradingRule) *domain.TradingSignal {
	return &domain.TradingSignal{Mint: p.Mint, Strategy: "always_sell", Action: domain.ActionSell, QuantityToSell: p.TotalQuantity}
}

func TestRegistry_FromRule(t *testing.T) {
	r := NewRegistry(alwaysSell{})

	e, err := r.FromRule(&domain.TradingRule{Strategy: domain.DefaultStrategy})
	if err != nil {
		t.Fatalf("FromRule(tp_sl) error: %v", err)
	}
	if e.ID() != domain.DefaultStrategy {
		t.Errorf("ID = %s, want %s", e.ID(), domain.DefaultStrategy)
	}

	if _, err := r.FromRule(&domain.TradingRule{Strategy: "always_sell"}); err != nil {
		t.Errorf("FromRule(always_sell) error: %v", err)
	}

	_, err = r.FromRule(&domain.TradingRule{Strategy: "grid"})
	if !errors.Is(err, ErrUnknownStrategyType) {
		t.Errorf("FromRule(grid) error = %v, want ErrUnknownStrategyType", err)
	}
}

func TestRegistry_EvaluateUnknownHolds(t *testing.T) {
	r := NewRegistry()
	p := makePosition("10", "1")

	sig := r.Evaluate(p, valueAtPct(p, "90"), &domain.TradingRule{Strategy: "grid", Enabled: true})
	if sig.Action != domain.ActionHold {
		t.Errorf("action = %s, want HOLD", sig.Action)
	}
	if sig.Strategy != "grid" {
		t.Errorf("strategy = %s, want grid", sig.Strategy)
	}
}
