package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Wallet PnL Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.Wallet != "" {
		sb.WriteString(fmt.Sprintf("Wallet: `%s`\n\n", r.Wallet))
	}

	// Summary
	t := r.Totals
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| %s Balance | %s |\n", domain.BaseSymbol, t.BaseBalance.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Open Positions | %d |\n", t.OpenPositions))
	sb.WriteString(fmt.Sprintf("| Unpriced Positions | %d |\n", t.Unpriced))
	sb.WriteString(fmt.Sprintf("| Invested | %s |\n", t.Invested.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Current Value | %s |\n", t.CurrentValue.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Unrealized PnL | %s |\n", t.UnrealizedPnL.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Realized PnL | %s |\n", t.RealizedPnL.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Portfolio Value | %s |\n", t.PortfolioValue().StringFixed(6)))
	sb.WriteString("\n")

	// Positions
	sb.WriteString("## Positions\n\n")
	tokens := 0
	for _, p := range r.Positions {
		if !p.Base {
			tokens++
		}
	}
	if tokens > 0 {
		sb.WriteString("| Mint | Quantity | Avg Cost | Invested | Spot | Value | PnL | PnL% | Realized |\n")
		sb.WriteString("|------|----------|----------|----------|------|-------|-----|------|----------|\n")
		for _, p := range r.Positions {
			if p.Base {
				continue
			}
			spot, value, pnl, pct := "-", "-", "-", "-"
			if p.SpotPrice != nil {
				spot = p.SpotPrice.String()
				value = p.CurrentValue.StringFixed(6)
				pnl = sign(p.UnrealizedPnL, 6)
				pct = sign(p.PnLPct, 2)
			} else if !p.Open {
				spot = "closed"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				label(p), p.Quantity.String(), p.AvgCostBasis.String(), p.TotalInvested.StringFixed(6),
				spot, value, pnl, pct, p.RealizedPnL.StringFixed(6)))
		}
	} else {
		sb.WriteString("No token positions.\n")
	}
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Trades\n\n")
	if s := r.Trades; s != nil && s.Total > 0 {
		sb.WriteString(fmt.Sprintf("Live: %d | Dry run: %d | Wins: %d | Losses: %d | Win rate: %s%%\n\n",
			s.Live, s.DryRun, s.Wins, s.Losses, s.WinRate.StringFixed(1)))
		sb.WriteString(fmt.Sprintf("Sold for %s %s, estimated realized %s, average exit PnL %s%%\n\n",
			s.SoldBase.StringFixed(6), domain.BaseSymbol, s.RealizedBase.StringFixed(6), s.AvgPnLPct.StringFixed(2)))

		if len(s.ByTrigger) > 0 {
			sb.WriteString("| Trigger | Trades | Realized |\n")
			sb.WriteString("|---------|--------|----------|\n")
			for _, ts := range s.ByTrigger {
				sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", ts.Trigger, ts.Count, ts.RealizedBase.StringFixed(6)))
			}
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("No trades recorded.\n\n")
	}

	if len(r.RecentTrades) > 0 {
		sb.WriteString("### Recent\n\n")
		sb.WriteString("| Time | Mint | Trigger | PnL% | Sold | Received | Slippage | Tx |\n")
		sb.WriteString("|------|------|---------|------|------|----------|----------|----|\n")
		for _, tr := range r.RecentTrades {
			tx := tr.TxSignature
			if tr.DryRun {
				tx = "dry-run"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %d bps | %s |\n",
				tr.ExecutedAt.UTC().Format(time.RFC3339), shortMint(tr.Mint), tr.Trigger,
				sign(tr.PnLPct, 2), tr.QuantitySold.String(), tr.QuantityReceived.StringFixed(6),
				tr.SlippageBps, tx))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func label(p PositionRow) string {
	if p.Symbol != "" {
		return fmt.Sprintf("%s (%s)", p.Symbol, shortMint(p.Mint))
	}
	return shortMint(p.Mint)
}

func shortMint(mint string) string {
	if len(mint) <= 12 {
		return mint
	}
	return mint[:4] + "…" + mint[len(mint)-4:]
}

// sign prefixes positive values with "+".
func sign(d decimal.Decimal, places int32) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(places)
	}
	return d.StringFixed(places)
}
