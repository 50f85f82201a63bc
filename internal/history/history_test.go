package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage/memory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func trade(id string, trigger domain.Trigger, pct, received string, dry bool, at time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:               id,
		Mint:             "MintA",
		Strategy:         domain.DefaultStrategy,
		Trigger:          trigger,
		PnLPct:           d(pct),
		QuantityReceived: d(received),
		DryRun:           dry,
		ExecutedAt:       at,
	}
}

func TestRealizedEstimate(t *testing.T) {
	// Sold for 1.2 at +20%: cost 1.0.
	assert.True(t, RealizedEstimate(trade("a", domain.TriggerTakeProfit, "20", "1.2", false, t0)).Equal(d("0.2")))
	// Sold for 0.8 at -20%: cost 1.0.
	assert.True(t, RealizedEstimate(trade("b", domain.TriggerStopLoss, "-20", "0.8", false, t0)).Equal(d("-0.2")))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]*domain.TradeRecord{
		trade("1", domain.TriggerTakeProfit, "20", "1.2", false, t0),
		trade("2", domain.TriggerStopLoss, "-20", "0.8", false, t0.Add(time.Hour)),
		trade("3", domain.TriggerTakeProfit, "50", "3", false, t0.Add(2*time.Hour)),
		trade("4", domain.TriggerTakeProfit, "90", "5", true, t0.Add(3*time.Hour)),
	})

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Live)
	assert.Equal(t, 1, s.DryRun)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, "66.67", s.WinRate.StringFixed(2))
	assert.True(t, s.RealizedBase.Equal(d("1")), s.RealizedBase.String())
	assert.True(t, s.SoldBase.Equal(d("5")))
	assert.Equal(t, "16.67", s.AvgPnLPct.StringFixed(2))
	assert.Equal(t, t0, s.First)
	assert.Equal(t, t0.Add(3*time.Hour), s.Last)

	require.Len(t, s.ByTrigger, 2)
	assert.Equal(t, domain.TriggerStopLoss, s.ByTrigger[0].Trigger)
	assert.Equal(t, 1, s.ByTrigger[0].Count)
	assert.Equal(t, domain.TriggerTakeProfit, s.ByTrigger[1].Trigger)
	assert.Equal(t, 2, s.ByTrigger[1].Count)
	assert.True(t, s.ByTrigger[1].RealizedBase.Equal(d("1.2")))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.True(t, s.WinRate.IsZero())
	assert.Empty(t, s.ByTrigger)
}

func TestService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeRecordStore()
	for i, r := range []*domain.TradeRecord{
		trade("1", domain.TriggerTakeProfit, "20", "1.2", false, t0),
		trade("2", domain.TriggerStopLoss, "-20", "0.8", false, t0.Add(time.Hour)),
		trade("3", domain.TriggerTakeProfit, "50", "3", false, t0.Add(2*time.Hour)),
	} {
		require.NoError(t, store.AppendTrade(ctx, r), "trade %d", i)
	}
	svc := NewService(store)

	all, err := svc.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)

	recent, err := svc.Summary(ctx, t0.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, recent.Total)

	last, err := svc.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "3", last[0].ID)
	assert.Equal(t, "2", last[1].ID)
}
