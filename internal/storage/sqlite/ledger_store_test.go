package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

func TestLedgerStore_ApplyEventIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewLedgerStore(db)

	event := &domain.LedgerEvent{
		Signature:            "Sig1",
		Slot:                 7,
		Kind:                 domain.EventBuy,
		Mint:                 "MintX",
		Decimals:             6,
		CounterpartyMint:     domain.BaseMint,
		CounterpartyQuantity: d("1"),
		Quantity:             d("1000"),
		FeeInBaseUnits:       d("0.000005"),
	}
	pos := &domain.Position{Mint: "MintX", Decimals: 6, TotalQuantity: d("1000"), AvgCostBasis: d("0.001"), TotalInvested: d("1")}

	require.NoError(t, store.ApplyEvent(ctx, event, pos))

	dup := pos.Clone()
	dup.TotalQuantity = d("5000")
	assert.ErrorIs(t, store.ApplyEvent(ctx, event, dup), storage.ErrDuplicateKey)

	got, err := store.GetPosition(ctx, "MintX")
	require.NoError(t, err)
	assert.True(t, got.TotalQuantity.Equal(d("1000")))
	assert.True(t, got.AvgCostBasis.Equal(d("0.001")))
	assert.Equal(t, int32(6), got.Decimals)

	events, err := store.ListEventsByMint(ctx, "MintX")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBuy, events[0].Kind)
	assert.True(t, events[0].CounterpartyQuantity.Equal(d("1")))
}

func TestLedgerStore_InsertOrderPreserved(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewLedgerStore(db)

	for _, sig := range []string{"c", "a", "b"} {
		require.NoError(t, store.InsertEvent(ctx, &domain.LedgerEvent{
			Signature: sig, Mint: "M", Kind: domain.EventTransferIn, Quantity: d("1"),
		}))
	}

	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[0].Signature)
	assert.Equal(t, "a", events[1].Signature)
	assert.Equal(t, "b", events[2].Signature)

	has, err := store.HasEvent(ctx, "a", "M")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestLedgerStore_ReplacePositions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewLedgerStore(db)

	require.NoError(t, store.UpsertPosition(ctx, &domain.Position{Mint: "A", TotalQuantity: d("1")}))
	require.NoError(t, store.ReplacePositions(ctx, []*domain.Position{
		{Mint: "B", Decimals: 6, TotalQuantity: d("2"), AvgCostBasis: d("0.5"), TotalInvested: d("1")},
	}))

	_, err := store.GetPosition(ctx, "A")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	b, err := store.GetPosition(ctx, "B")
	require.NoError(t, err)
	assert.True(t, b.AvgCostBasis.Equal(d("0.5")))

	assert.ErrorIs(t, store.ReplacePositions(ctx, []*domain.Position{{Mint: ""}}), storage.ErrInvalidInput)
	_, err = store.GetPosition(ctx, "B")
	assert.NoError(t, err)
}

func TestLedgerStore_ReplacePositionsRollsBack(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	store := NewLedgerStore(Wrap(raw))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM positions").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO positions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO positions").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = store.ReplacePositions(context.Background(), []*domain.Position{{Mint: "A"}, {Mint: "B"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleAndCursorStores(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rules := NewRuleStore(db)
	require.NoError(t, rules.UpsertRule(ctx, &domain.TradingRule{
		Strategy: domain.DefaultStrategy, TakeProfitPct: d("50"), StopLossPct: d("-30"), SellPercentage: d("100"), Enabled: true,
	}))
	require.NoError(t, rules.SetRuleEnabled(ctx, "", domain.DefaultStrategy, false))
	r, err := rules.GetRule(ctx, "", domain.DefaultStrategy)
	require.NoError(t, err)
	assert.False(t, r.Enabled)
	assert.True(t, r.StopLossPct.Equal(d("-30")))
	assert.ErrorIs(t, rules.SetRuleEnabled(ctx, "X", domain.DefaultStrategy, true), storage.ErrNotFound)

	cursors := NewSyncCursorStore(db)
	_, err = cursors.GetCursor(ctx, "W")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, cursors.SetCursor(ctx, &domain.SyncCursor{Wallet: "W", Signature: "S", Slot: 3}))
	c, err := cursors.GetCursor(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, "S", c.Signature)
}
