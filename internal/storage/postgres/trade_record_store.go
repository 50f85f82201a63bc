package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

// AppendTrade adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TradeRecordStore) AppendTrade(ctx context.Context, r *domain.TradeRecord) error {
	if r == nil || r.ID == "" || r.Mint == "" {
		return storage.ErrInvalidInput
	}

	var txSig *string
	if r.TxSignature != "" {
		txSig = &r.TxSignature
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_history (
			id, mint, strategy, trigger, pnl_pct, pnl_base,
			quantity_sold, quantity_received, tx_signature, dry_run,
			slippage_bps, attempts, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13
		)
	`,
		r.ID, r.Mint, r.Strategy, string(r.Trigger), num(r.PnLPct), num(r.PnLBase),
		num(r.QuantitySold), num(r.QuantityReceived), txSig, r.DryRun,
		r.SlippageBps, r.Attempts, r.ExecutedAt.UTC(),
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
	SELECT id, mint, strategy, trigger, pnl_pct::text, pnl_base::text,
	       quantity_sold::text, quantity_received::text, COALESCE(tx_signature, ''),
	       dry_run, slippage_bps, attempts, executed_at
	FROM trade_history
`

// ListTrades returns all records ordered by executed_at ASC.
func (s *TradeRecordStore) ListTrades(ctx context.Context) ([]*domain.TradeRecord, error) {
	return s.query(ctx, selectTradeSQL+` ORDER BY executed_at ASC, id ASC`)
}

// ListTradesByMint returns records for one mint ordered by executed_at ASC.
func (s *TradeRecordStore) ListTradesByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error) {
	return s.query(ctx, selectTradeSQL+` WHERE mint = $1 ORDER BY executed_at ASC, id ASC`, mint)
}

// ListTradesSince returns records with executed_at >= since.
func (s *TradeRecordStore) ListTradesSince(ctx context.Context, since time.Time) ([]*domain.TradeRecord, error) {
	return s.query(ctx, selectTradeSQL+` WHERE executed_at >= $1 ORDER BY executed_at ASC, id ASC`, since.UTC())
}

// CountLiveTradesSince counts non-dry-run records with executed_at >= since.
func (s *TradeRecordStore) CountLiveTradesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trade_history WHERE dry_run = FALSE AND executed_at >= $1
	`, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func (s *TradeRecordStore) query(ctx context.Context, sql string, args ...any) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var records []*domain.TradeRecord
	for rows.Next() {
		r, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanTrade(row pgx.Row) (*domain.TradeRecord, error) {
	var (
		r       domain.TradeRecord
		trigger string
	)
	nums := newDecimalScanner(&r.PnLPct, &r.PnLBase, &r.QuantitySold, &r.QuantityReceived)
	dests := []any{&r.ID, &r.Mint, &r.Strategy, &trigger}
	dests = append(dests, nums.dests()...)
	dests = append(dests, &r.TxSignature, &r.DryRun, &r.SlippageBps, &r.Attempts, &r.ExecutedAt)
	if err := row.Scan(dests...); err != nil {
		return nil, err
	}
	if err := nums.resolve(); err != nil {
		return nil, err
	}
	r.Trigger = domain.Trigger(trigger)
	return &r, nil
}
