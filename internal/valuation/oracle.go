package valuation

import (
	"context"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/jupiter"
)

// JupiterOracle prices mints in the base currency through the Jupiter price API.
type JupiterOracle struct {
	client *jupiter.Client
}

// NewJupiterOracle wraps client.
func NewJupiterOracle(client *jupiter.Client) *JupiterOracle {
	return &JupiterOracle{client: client}
}

// SpotPrice implements PriceOracle.
func (o *JupiterOracle) SpotPrice(ctx context.Context, mint string) (*decimal.Decimal, error) {
	if mint == domain.BaseMint {
		one := decimal.NewFromInt(1)
		return &one, nil
	}
	return o.client.SpotPrice(ctx, mint, domain.BaseMint)
}

// SpotPrices implements BatchOracle.
func (o *JupiterOracle) SpotPrices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error) {
	return o.client.Prices(ctx, mints, domain.BaseMint)
}

// StaticOracle serves fixed prices. Missing mints are unpriced.
type StaticOracle map[string]decimal.Decimal

// SpotPrice implements PriceOracle.
func (o StaticOracle) SpotPrice(_ context.Context, mint string) (*decimal.Decimal, error) {
	p, ok := o[mint]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
