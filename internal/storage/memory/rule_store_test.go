package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

func TestRuleStore_UpsertDisableList(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()

	def := &domain.TradingRule{Strategy: domain.DefaultStrategy, TakeProfitPct: decimal.NewFromInt(50), Enabled: true}
	perMint := &domain.TradingRule{Mint: "mintA", Strategy: domain.DefaultStrategy, TakeProfitPct: decimal.NewFromInt(15), Enabled: true}

	for _, r := range []*domain.TradingRule{perMint, def} {
		if err := store.UpsertRule(ctx, r); err != nil {
			t.Fatalf("UpsertRule failed: %v", err)
		}
	}

	if err := store.SetRuleEnabled(ctx, "mintA", domain.DefaultStrategy, false); err != nil {
		t.Fatalf("SetRuleEnabled failed: %v", err)
	}

	got, err := store.GetRule(ctx, "mintA", domain.DefaultStrategy)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.Enabled {
		t.Error("expected rule to be disabled")
	}

	rules, _ := store.ListRules(ctx)
	if len(rules) != 2 {
		t.Fatalf("disabled rules must still be listed, got %d", len(rules))
	}
	if !rules[0].IsDefault() {
		t.Errorf("expected default rule first")
	}
}

func TestRuleStore_SetRuleEnabledMissing(t *testing.T) {
	store := NewRuleStore()

	err := store.SetRuleEnabled(context.Background(), "nope", domain.DefaultStrategy, true)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
