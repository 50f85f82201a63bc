package ledger

import (
	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
)

// divPrecision is the scale used for average cost divisions.
const divPrecision = 18

// costFunc values qty units of mint at that position's average cost.
type costFunc func(mint string, qty decimal.Decimal) decimal.Decimal

// applyEvent mutates p by e. p must be the current state of e.Mint.
// Returns the realized PnL the event produced.
func applyEvent(p *domain.Position, e *domain.LedgerEvent, costOf costFunc, dust decimal.Decimal) decimal.Decimal {
	realized := decimal.Zero

	if e.IsBase() {
		qty := p.TotalQuantity
		if e.Kind.Inbound() {
			qty = qty.Add(e.Quantity)
		} else {
			qty = decimal.Max(qty.Sub(e.Quantity), decimal.Zero)
		}
		setBase(p, qty)
		return realized
	}

	switch e.Kind {
	case domain.EventBuy:
		spent := buyCost(e, costOf).Add(e.FeeInBaseUnits)
		newQty := p.TotalQuantity.Add(e.Quantity)
		p.TotalInvested = p.TotalInvested.Add(spent)
		p.TotalQuantity = newQty
		if newQty.IsPositive() {
			p.AvgCostBasis = p.TotalInvested.DivRound(newQty, divPrecision)
		}

	case domain.EventSell:
		q := decimal.Min(e.Quantity, p.TotalQuantity)
		if q.IsPositive() {
			costOut := p.AvgCostBasis.Mul(q)
			if e.CounterpartyMint == domain.BaseMint {
				proceeds := e.CounterpartyQuantity.Sub(e.FeeInBaseUnits)
				realized = proceeds.Sub(costOut)
			}
			p.TotalInvested = decimal.Max(p.TotalInvested.Sub(costOut), decimal.Zero)
			p.TotalQuantity = p.TotalQuantity.Sub(q)
			p.RealizedPnL = p.RealizedPnL.Add(realized)
		}

	case domain.EventTransferIn:
		p.TotalQuantity = p.TotalQuantity.Add(e.Quantity)
		if p.TotalQuantity.IsPositive() {
			p.AvgCostBasis = p.TotalInvested.DivRound(p.TotalQuantity, divPrecision)
		}

	case domain.EventTransferOut:
		q := decimal.Min(e.Quantity, p.TotalQuantity)
		if p.TotalQuantity.IsPositive() {
			share := p.TotalInvested.Mul(q).DivRound(p.TotalQuantity, divPrecision)
			p.TotalInvested = decimal.Max(p.TotalInvested.Sub(share), decimal.Zero)
		}
		p.TotalQuantity = p.TotalQuantity.Sub(q)
	}

	if p.TotalQuantity.LessThanOrEqual(dust) {
		p.Close()
	}
	return realized
}

// buyCost is the base value given up for a BUY. Token-for-token buys carry
// over the cost basis of the sold token.
func buyCost(e *domain.LedgerEvent, costOf costFunc) decimal.Decimal {
	switch e.CounterpartyMint {
	case domain.BaseMint:
		return e.CounterpartyQuantity
	case "":
		return decimal.Zero
	default:
		if costOf == nil {
			return decimal.Zero
		}
		return costOf(e.CounterpartyMint, e.CounterpartyQuantity)
	}
}

// setBase sets the base-currency position to qty. Its unit cost is always 1.
func setBase(p *domain.Position, qty decimal.Decimal) {
	p.TotalQuantity = qty
	p.AvgCostBasis = decimal.NewFromInt(1)
	p.TotalInvested = qty
	if p.Decimals == 0 {
		p.Decimals = domain.BaseDecimals
	}
	if p.Symbol == "" {
		p.Symbol = domain.BaseSymbol
	}
}
