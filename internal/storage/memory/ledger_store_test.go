package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

func TestLedgerStore_ApplyEventDuplicateWritesNothing(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	event := &domain.LedgerEvent{Signature: "sig1", Mint: "mintA", Kind: domain.EventBuy, Quantity: decimal.NewFromInt(10)}
	pos := &domain.Position{Mint: "mintA", TotalQuantity: decimal.NewFromInt(10)}

	if err := store.ApplyEvent(ctx, event, pos); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	changed := &domain.Position{Mint: "mintA", TotalQuantity: decimal.NewFromInt(20)}
	err := store.ApplyEvent(ctx, event, changed)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetPosition(ctx, "mintA")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !got.TotalQuantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("position changed on duplicate: %s", got.TotalQuantity)
	}

	events, _ := store.ListEvents(ctx)
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestLedgerStore_SameSignatureDifferentMint(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	if err := store.InsertEvent(ctx, &domain.LedgerEvent{Signature: "sig1", Mint: "mintA"}); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if err := store.InsertEvent(ctx, &domain.LedgerEvent{Signature: "sig1", Mint: domain.BaseMint}); err != nil {
		t.Fatalf("InsertEvent for second mint failed: %v", err)
	}

	ok, _ := store.HasEvent(ctx, "sig1", domain.BaseMint)
	if !ok {
		t.Error("expected event for base mint")
	}

	byMint, _ := store.ListEventsByMint(ctx, "mintA")
	if len(byMint) != 1 {
		t.Errorf("expected 1 event for mintA, got %d", len(byMint))
	}
}

func TestLedgerStore_PositionsCopyAndReplace(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	pos := &domain.Position{Mint: "b", TotalQuantity: decimal.NewFromInt(1)}
	_ = store.UpsertPosition(ctx, pos)
	_ = store.UpsertPosition(ctx, &domain.Position{Mint: "a"})

	pos.TotalQuantity = decimal.NewFromInt(99)
	got, _ := store.GetPosition(ctx, "b")
	if !got.TotalQuantity.Equal(decimal.NewFromInt(1)) {
		t.Errorf("store kept caller reference")
	}

	list, _ := store.ListPositions(ctx)
	if len(list) != 2 || list[0].Mint != "a" {
		t.Errorf("expected mint order a,b got %v", list)
	}

	if err := store.ReplacePositions(ctx, []*domain.Position{{Mint: "c"}, nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.GetPosition(ctx, "a"); err != nil {
		t.Errorf("rejected replace must keep existing rows, got %v", err)
	}

	if err := store.ReplacePositions(ctx, []*domain.Position{{Mint: "c"}}); err != nil {
		t.Fatalf("ReplacePositions failed: %v", err)
	}
	if _, err := store.GetPosition(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after replace, got %v", err)
	}
	list, _ = store.ListPositions(ctx)
	if len(list) != 1 || list[0].Mint != "c" {
		t.Errorf("expected only c after replace, got %v", list)
	}
}
