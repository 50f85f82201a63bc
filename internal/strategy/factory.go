package strategy

import (
	"errors"
	"fmt"

	"solana-pnl-bot/internal/domain"
)

// ErrUnknownStrategyType is returned for a rule naming no known strategy.
var ErrUnknownStrategyType = errors.New("unknown strategy type")

// Registry resolves the evaluator named by a rule.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry(extra ...Evaluator) *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator)}
	r.Register(NewTPSL())
	for _, e := range extra {
		r.Register(e)
	}
	return r
}

// Register adds or replaces e under e.ID().
func (r *Registry) Register(e Evaluator) {
	r.evaluators[e.ID()] = e
}

// FromRule returns the evaluator for rule.Strategy.
func (r *Registry) FromRule(rule *domain.TradingRule) (Evaluator, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: nil rule", ErrUnknownStrategyType)
	}
	e, ok := r.evaluators[rule.Strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, rule.Strategy)
	}
	return e, nil
}

// Evaluate dispatches to the evaluator named by rule. An unknown strategy
// yields HOLD.
func (r *Registry) Evaluate(p *domain.Position, v *domain.Valuation, rule *domain.TradingRule) *domain.TradingSignal {
	e, err := r.FromRule(rule)
	if err != nil {
		name := ""
		if rule != nil {
			name = rule.Strategy
		}
		return hold(p, name, err.Error())
	}
	return e.Evaluate(p, v, rule)
}
