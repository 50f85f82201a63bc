package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// RuleStore implements storage.RuleStore using PostgreSQL.
type RuleStore struct {
	pool *Pool
}

// NewRuleStore creates a new RuleStore.
func NewRuleStore(pool *Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RuleStore = (*RuleStore)(nil)

// UpsertRule inserts or replaces the rule keyed by (mint, strategy).
func (s *RuleStore) UpsertRule(ctx context.Context, r *domain.TradingRule) error {
	if r == nil || r.Strategy == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO trading_rules (
			mint, strategy, take_profit_pct, stop_loss_pct, sell_percentage, enabled, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mint, strategy) DO UPDATE
		SET take_profit_pct = EXCLUDED.take_profit_pct,
		    stop_loss_pct = EXCLUDED.stop_loss_pct,
		    sell_percentage = EXCLUDED.sell_percentage,
		    enabled = EXCLUDED.enabled,
		    updated_at = EXCLUDED.updated_at
	`, r.Mint, r.Strategy, num(r.TakeProfitPct), num(r.StopLossPct), num(r.SellPercentage),
		r.Enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

const selectRuleSQL = `
	SELECT mint, strategy, take_profit_pct::text, stop_loss_pct::text, sell_percentage::text,
	       enabled, updated_at
	FROM trading_rules
`

// GetRule returns the rule for (mint, strategy). Returns ErrNotFound if not exists.
func (s *RuleStore) GetRule(ctx context.Context, mint, strategy string) (*domain.TradingRule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, selectRuleSQL+` WHERE mint = $1 AND strategy = $2`, mint, strategy))
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
	rows, err := s.pool.Query(ctx, selectRuleSQL+` ORDER BY mint ASC, strategy ASC`)
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
	tag, err := s.pool.Exec(ctx, `
		UPDATE trading_rules SET enabled = $3, updated_at = NOW()
		WHERE mint = $1 AND strategy = $2
	`, mint, strategy, enabled)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (*domain.TradingRule, error) {
	var r domain.TradingRule
	nums := newDecimalScanner(&r.TakeProfitPct, &r.StopLossPct, &r.SellPercentage)
	dests := []any{&r.Mint, &r.Strategy}
	dests = append(dests, nums.dests()...)
	dests = append(dests, &r.Enabled, &r.UpdatedAt)
	if err := row.Scan(dests...); err != nil {
		return nil, err
	}
	if err := nums.resolve(); err != nil {
		return nil, err
	}
	return &r, nil
}
