package sqlite

import (
	"context"
	"fmt"
	"time"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// RuleStore implements storage.RuleStore using SQLite.
type RuleStore struct {
	db *DB
}

// NewRuleStore creates a new RuleStore.
func NewRuleStore(db *DB) *RuleStore {
	return &RuleStore{db: db}
}

// Compile-time interface check.
var _ storage.RuleStore = (*RuleStore)(nil)

// UpsertRule inserts or replaces the rule keyed by (mint, strategy).
func (s *RuleStore) UpsertRule(ctx context.Context, r *domain.TradingRule) error {
	if r == nil || r.Strategy == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trading_rules (
			mint, strategy, take_profit_pct, stop_loss_pct, sell_percentage, enabled, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint, strategy) DO UPDATE SET
			take_profit_pct = excluded.take_profit_pct,
			stop_loss_pct = excluded.stop_loss_pct,
			sell_percentage = excluded.sell_percentage,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		r.Mint, r.Strategy, r.TakeProfitPct.String(), r.StopLossPct.String(), r.SellPercentage.String(),
		r.Enabled, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

const selectRuleSQL = `
	SELECT mint, strategy, take_profit_pct, stop_loss_pct, sell_percentage, enabled, updated_at
	FROM trading_rules`

func scanRule(row rowScanner) (*domain.TradingRule, error) {
	var (
		r         domain.TradingRule
		updatedAt int64
	)
	if err := row.Scan(
		&r.Mint, &r.Strategy, &r.TakeProfitPct, &r.StopLossPct, &r.SellPercentage, &r.Enabled, &updatedAt,
	); err != nil {
		return nil, err
	}
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

// GetRule returns the rule for (mint, strategy). Returns ErrNotFound if not exists.
func (s *RuleStore) GetRule(ctx context.Context, mint, strategy string) (*domain.TradingRule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, selectRuleSQL+` WHERE mint = ? AND strategy = ?`, mint, strategy))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

// ListRules returns all rules ordered by mint then strategy.
func (s *RuleStore) ListRules(ctx context.Context) ([]*domain.TradingRule, error) {
	rows, err := s.db.QueryContext(ctx, selectRuleSQL+` ORDER BY mint ASC, strategy ASC`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.TradingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SetRuleEnabled toggles a rule. Returns ErrNotFound if not exists.
func (s *RuleStore) SetRuleEnabled(ctx context.Context, mint, strategy string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trading_rules SET enabled = ?, updated_at = ? WHERE mint = ? AND strategy = ?`,
		enabled, time.Now().UnixMilli(), mint, strategy,
	)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
