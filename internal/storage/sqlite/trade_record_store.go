package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using SQLite.
type TradeRecordStore struct {
	db *DB
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(db *DB) *TradeRecordStore {
	return &TradeRecordStore{db: db}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

// AppendTrade adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TradeRecordStore) AppendTrade(ctx context.Context, r *domain.TradeRecord) error {
	if r == nil || r.ID == "" || r.Mint == "" {
		return storage.ErrInvalidInput
	}

	txSig := sql.NullString{String: r.TxSignature, Valid: r.TxSignature != ""}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_history (
			id, mint, strategy, trigger, pnl_pct, pnl_base,
			quantity_sold, quantity_received, tx_signature, dry_run,
			slippage_bps, attempts, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mint, r.Strategy, string(r.Trigger), r.PnLPct.String(), r.PnLBase.String(),
		r.QuantitySold.String(), r.QuantityReceived.String(), txSig, r.DryRun,
		r.SlippageBps, r.Attempts, toMillis(r.ExecutedAt),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

const selectTradeSQL = `
	SELECT id, mint, strategy, trigger, pnl_pct, pnl_base, quantity_sold, quantity_received,
	       tx_signature, dry_run, slippage_bps, attempts, executed_at
	FROM trade_history`

// ListTrades returns all records ordered by executed_at ASC.
func (s *TradeRecordStore) ListTrades(ctx context.Context) ([]*domain.TradeRecord, error) {
	return s.query(ctx, selectTradeSQL+` ORDER BY executed_at ASC, id ASC`)
}

// ListTradesByMint returns records for one mint ordered by executed_at ASC.
func (s *TradeRecordStore) ListTradesByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error) {
	return s.query(ctx, selectTradeSQL+` WHERE mint = ? ORDER BY executed_at ASC, id ASC`, mint)
}

// ListTradesSince returns records with executed_at >= since.
func (s *TradeRecordStore) ListTradesSince(ctx context.Context, since time.Time) ([]*domain.TradeRecord, error) {
	return s.query(ctx, selectTradeSQL+` WHERE executed_at >= ? ORDER BY executed_at ASC, id ASC`, since.UnixMilli())
}

// CountLiveTradesSince counts non-dry-run records with executed_at >= since.
func (s *TradeRecordStore) CountLiveTradesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trade_history WHERE dry_run = 0 AND executed_at >= ?`,
		since.UnixMilli(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func (s *TradeRecordStore) query(ctx context.Context, query string, args ...any) ([]*domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var records []*domain.TradeRecord
	for rows.Next() {
		var (
			r          domain.TradeRecord
			trigger    string
			txSig      sql.NullString
			executedAt int64
		)
		if err := rows.Scan(
			&r.ID, &r.Mint, &r.Strategy, &trigger, &r.PnLPct, &r.PnLBase,
			&r.QuantitySold, &r.QuantityReceived, &txSig, &r.DryRun,
			&r.SlippageBps, &r.Attempts, &executedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		r.Trigger = domain.Trigger(trigger)
		r.TxSignature = txSig.String
		r.ExecutedAt = fromMillis(executedAt)
		records = append(records, &r)
	}
	return records, rows.Err()
}
