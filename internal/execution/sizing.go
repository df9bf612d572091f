package execution

import "github.com/shopspring/decimal"

// SizeTrade scales a contract quantity into execution units and rounds to
// whole units, half away from zero. Standard futures may trade fewer
// execution units than contract units for margin or lot-size reasons;
// spread-bet instruments bypass this entirely.
func SizeTrade(trade decimal.Decimal, factor float64) decimal.Decimal {
	if factor <= 0 || factor >= 1 {
		return trade
	}
	f := decimal.NewFromFloat(factor)
	return trade.Mul(f).Round(0)
}
