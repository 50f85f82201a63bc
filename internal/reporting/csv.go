package reporting

import (
	"fmt"
	"strings"
	"time"

	"solana-pnl-bot/internal/domain"
)

// RenderCSV renders position rows as CSV string. Unpriced columns are empty.
func RenderCSV(rows []PositionRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("mint,symbol,quantity,avg_cost_basis,total_invested,")
	sb.WriteString("spot_price,current_value,unrealized_pnl,unrealized_pnl_pct,realized_pnl\n")

	// Rows
	for _, r := range rows {
		spot, value, pnl, pct := "", "", "", ""
		if r.SpotPrice != nil {
			spot = r.SpotPrice.String()
			value = r.CurrentValue.String()
			pnl = r.UnrealizedPnL.String()
			pct = r.PnLPct.StringFixed(4)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%s,%s\n",
			r.Mint,
			r.Symbol,
			r.Quantity.String(),
			r.AvgCostBasis.String(),
			r.TotalInvested.String(),
			spot,
			value,
			pnl,
			pct,
			r.RealizedPnL.String(),
		))
	}

	return sb.String()
}

// RenderTradesCSV renders trade records as CSV string.
func RenderTradesCSV(trades []*domain.TradeRecord) string {
	var sb strings.Builder

	sb.WriteString("id,executed_at,mint,strategy,trigger,pnl_pct,pnl_base,")
	sb.WriteString("quantity_sold,quantity_received,slippage_bps,attempts,dry_run,tx_signature\n")

	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%s,%d,%d,%t,%s\n",
			t.ID,
			t.ExecutedAt.UTC().Format(time.RFC3339),
			t.Mint,
			t.Strategy,
			t.Trigger,
			t.PnLPct.StringFixed(4),
			t.PnLBase.String(),
			t.QuantitySold.String(),
			t.QuantityReceived.String(),
			t.SlippageBps,
			t.Attempts,
			t.DryRun,
			t.TxSignature,
		))
	}

	return sb.String()
}
