package strategy

import "github.com/shopspring/decimal"

// TargetPrice computes the take-profit limit for an entry: the percentage
// target, stretched to entry + kATR*atr when the ATR target is enabled and a
// usable ATR exists. Rounded to the cent, as brokers reject sub-penny limits.
func TargetPrice(entry, targetPct, atr, kATR float64) float64 {
	if entry <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	target := e.Mul(decimal.NewFromFloat(1).Add(decimal.NewFromFloat(targetPct)))
	if kATR > 0 && atr > 0 {
		alt := e.Add(decimal.NewFromFloat(kATR).Mul(decimal.NewFromFloat(atr)))
		if alt.GreaterThan(target) {
			target = alt
		}
	}
	f, _ := target.Round(2).Float64()
	return f
}

// RealizedPnL is (exit - entry) * qty in cent-exact arithmetic.
func RealizedPnL(exitPrice, entryPrice float64, qty int) float64 {
	diff := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(entryPrice))
	f, _ := diff.Mul(decimal.NewFromInt(int64(qty))).Float64()
	return f
}

// RunPct is the proportional distance price has run past the signal bar
// high; the slippage guard compares it to its cap. Zero when the anchor is
// unusable.
func RunPct(price, signalHigh float64) float64 {
	if signalHigh <= 0 {
		return 0
	}
	return (price - signalHigh) / signalHigh
}
