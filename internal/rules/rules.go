// Package rules resolves take-profit/stop-loss rules per mint.
package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// Defaults are the thresholds of the global default rule when none is stored.
type Defaults struct {
	TakeProfitPct  decimal.Decimal
	StopLossPct    decimal.Decimal
	SellPercentage decimal.Decimal
}

// DefaultDefaults sells everything at +50% or -20%.
var DefaultDefaults = Defaults{
	TakeProfitPct:  decimal.NewFromInt(50),
	StopLossPct:    decimal.NewFromInt(-20),
	SellPercentage: decimal.NewFromInt(100),
}

// Options configures a Service.
type Options struct {
	Store    storage.RuleStore
	Defaults Defaults
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service reads and edits trading rules.
type Service struct {
	store    storage.RuleStore
	defaults Defaults
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Defaults.TakeProfitPct.IsZero() && opts.Defaults.StopLossPct.IsZero() && opts.Defaults.SellPercentage.IsZero() {
		opts.Defaults = DefaultDefaults
	}
	return &Service{
		store:    opts.Store,
		defaults: opts.Defaults,
		logger:   opts.Logger.With(zap.String("component", "rules")),
		now:      opts.Now,
	}
}

// Resolve returns the rule in force for mint: its own rule when one exists
// (enabled or not), else the stored global default, else the configured
// defaults. A disabled mint rule is returned as is so the mint is held.
func (s *Service) Resolve(ctx context.Context, mint string) (*domain.TradingRule, error) {
	if mint != "" {
		r, err := s.store.GetRule(ctx, mint, domain.DefaultStrategy)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get rule %s: %w", mint, err)
		}
	}

	r, err := s.store.GetRule(ctx, "", domain.DefaultStrategy)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get default rule: %w", err)
	}
	return s.fallback(), nil
}

func (s *Service) fallback() *domain.TradingRule {
	return &domain.TradingRule{
		Strategy:       domain.DefaultStrategy,
		TakeProfitPct:  s.defaults.TakeProfitPct,
		StopLossPct:    s.defaults.StopLossPct,
		SellPercentage: s.defaults.SellPercentage,
		Enabled:        true,
	}
}

// Set validates and stores r, enabling it.
func (s *Service) Set(ctx context.Context, r *domain.TradingRule) error {
	if r.Strategy == "" {
		r.Strategy = domain.DefaultStrategy
	}
	r.Enabled = true
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	r.UpdatedAt = s.now().UTC()
	if err := s.store.UpsertRule(ctx, r); err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	s.logger.Info("rule set",
		zap.String("mint", r.Mint),
		zap.String("take_profit_pct", r.TakeProfitPct.String()),
		zap.String("stop_loss_pct", r.StopLossPct.String()),
		zap.String("sell_pct", r.SellPercentage.String()),
	)
	return nil
}

// Disable turns off the rule of mint. Disabling a mint without its own rule
// stores a disabled copy of the default so the mint is held.
func (s *Service) Disable(ctx context.Context, mint string) error {
	err := s.store.SetRuleEnabled(ctx, mint, domain.DefaultStrategy, false)
	if err == nil {
		s.logger.Info("rule disabled", zap.String("mint", mint))
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) || mint == "" {
		return fmt.Errorf("disable rule: %w", err)
	}

	base, err := s.Resolve(ctx, "")
	if err != nil {
		return err
	}
	r := *base
	r.Mint = mint
	r.Enabled = false
	r.UpdatedAt = s.now().UTC()
	if err := s.store.UpsertRule(ctx, &r); err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	s.logger.Info("rule disabled", zap.String("mint", mint))
	return nil
}

// List returns every stored rule.
func (s *Service) List(ctx context.Context) ([]*domain.TradingRule, error) {
	return s.store.ListRules(ctx)
}

// ruleFile is the YAML layout accepted by Import.
type ruleFile struct {
	Default *ruleEntry  `yaml:"default"`
	Rules   []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Mint           string `yaml:"mint"`
	TakeProfitPct  string `yaml:"take_profit_pct"`
	StopLossPct    string `yaml:"stop_loss_pct"`
	SellPercentage string `yaml:"sell_percentage"`
	Enabled        *bool  `yaml:"enabled"`
}

func (e ruleEntry) toRule() (*domain.TradingRule, error) {
	tp, err := decimal.NewFromString(e.TakeProfitPct)
	if err != nil {
		return nil, fmt.Errorf("take_profit_pct %q: %w", e.TakeProfitPct, err)
	}
	sl, err := decimal.NewFromString(e.StopLossPct)
	if err != nil {
		return nil, fmt.Errorf("stop_loss_pct %q: %w", e.StopLossPct, err)
	}
	sell := decimal.NewFromInt(100)
	if e.SellPercentage != "" {
		if sell, err = decimal.NewFromString(e.SellPercentage); err != nil {
			return nil, fmt.Errorf("sell_percentage %q: %w", e.SellPercentage, err)
		}
	}
	return &domain.TradingRule{
		Mint:           e.Mint,
		Strategy:       domain.DefaultStrategy,
		TakeProfitPct:  tp,
		StopLossPct:    sl,
		SellPercentage: sell,
		Enabled:        e.Enabled == nil || *e.Enabled,
	}, nil
}

// Import reads rules from YAML and stores them. Nothing is written unless
// every entry is valid. Returns the number of rules stored.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	var file ruleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("decode rules: %w", err)
	}

	entries := file.Rules
	if file.Default != nil {
		def := *file.Default
		def.Mint = ""
		entries = append([]ruleEntry{def}, entries...)
	}

	parsed := make([]*domain.TradingRule, 0, len(entries))
	for i, e := range entries {
		rule, err := e.toRule()
		if err == nil {
			err = rule.Validate()
		}
		if err != nil {
			return 0, fmt.Errorf("%w: rule %d (%q): %v", storage.ErrInvalidInput, i, e.Mint, err)
		}
		parsed = append(parsed, rule)
	}

	now := s.now().UTC()
	for _, rule := range parsed {
		rule.UpdatedAt = now
		if err := s.store.UpsertRule(ctx, rule); err != nil {
			return 0, fmt.Errorf("upsert rule %q: %w", rule.Mint, err)
		}
	}
	s.logger.Info("rules imported", zap.Int("count", len(parsed)))
	return len(parsed), nil
}
