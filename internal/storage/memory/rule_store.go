package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

type ruleKey struct {
	Mint     string
	Strategy string
}

// RuleStore is an in-memory implementation of storage.RuleStore.
type RuleStore struct {
	mu   sync.RWMutex
	data map[ruleKey]*domain.TradingRule
}

// NewRuleStore creates a new in-memory rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{
		data: make(map[ruleKey]*domain.TradingRule),
	}
}

// UpsertRule inserts or replaces the rule keyed by (mint, strategy).
func (s *RuleStore) UpsertRule(_ context.Context, r *domain.TradingRule) error {
	if r == nil || r.Strategy == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *r
	s.data[ruleKey{Mint: r.Mint, Strategy: r.Strategy}] = &copy
	return nil
}

// GetRule returns the rule for (mint, strategy).
func (s *RuleStore) GetRule(_ context.Context, mint, strategy string) (*domain.TradingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[ruleKey{Mint: mint, Strategy: strategy}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *r
	return &copy, nil
}

// ListRules returns all rules ordered by mint then strategy.
func (s *RuleStore) ListRules(_ context.Context) ([]*domain.TradingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TradingRule, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Mint != result[j].Mint {
			return result[i].Mint < result[j].Mint
		}
		return result[i].Strategy < result[j].Strategy
	})
	return result, nil
}

// SetRuleEnabled toggles a rule. Returns ErrNotFound if not exists.
func (s *RuleStore) SetRuleEnabled(_ context.Context, mint, strategy string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[ruleKey{Mint: mint, Strategy: strategy}]
	if !ok {
		return storage.ErrNotFound
	}
	r.Enabled = enabled
	return nil
}

var _ storage.RuleStore = (*RuleStore)(nil)
