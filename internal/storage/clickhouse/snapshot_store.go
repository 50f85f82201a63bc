package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// Values are stored as Float64; the series is for charts and reports, not accounting.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertSnapshots appends a batch of snapshots.
func (s *SnapshotStore) InsertSnapshots(ctx context.Context, snaps []*domain.ValuationSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO valuation_snapshots (
			cycle_id, ts, mint, quantity, spot_price, current_value,
			total_invested, unrealized_pnl, unrealized_pnl_pct
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		if snap == nil || snap.Mint == "" {
			_ = batch.Abort()
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			snap.CycleID, snap.Timestamp.UTC(), snap.Mint,
			snap.Quantity.InexactFloat64(), snap.SpotPrice.InexactFloat64(), snap.CurrentValue.InexactFloat64(),
			snap.TotalInvested.InexactFloat64(), snap.UnrealizedPnL.InexactFloat64(), snap.UnrealizedPnLPct.InexactFloat64(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetSnapshots returns snapshots for mint within [start, end] ordered by timestamp ASC.
func (s *SnapshotStore) GetSnapshots(ctx context.Context, mint string, start, end time.Time) ([]*domain.ValuationSnapshot, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT cycle_id, ts, mint, quantity, spot_price, current_value,
		       total_invested, unrealized_pnl, unrealized_pnl_pct
		FROM valuation_snapshots
		WHERE mint = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, mint, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.ValuationSnapshot
	for rows.Next() {
		var (
			snap                                domain.ValuationSnapshot
			qty, price, value, invested, pnl, pct float64
		)
		if err := rows.Scan(
			&snap.CycleID, &snap.Timestamp, &snap.Mint,
			&qty, &price, &value, &invested, &pnl, &pct,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Quantity = decimal.NewFromFloat(qty)
		snap.SpotPrice = decimal.NewFromFloat(price)
		snap.CurrentValue = decimal.NewFromFloat(value)
		snap.TotalInvested = decimal.NewFromFloat(invested)
		snap.UnrealizedPnL = decimal.NewFromFloat(pnl)
		snap.UnrealizedPnLPct = decimal.NewFromFloat(pct)
		result = append(result, &snap)
	}

	return result, rows.Err()
}
