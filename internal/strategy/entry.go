// Package strategy implements the entry qualification rules: a pullback-to-
// VWAP continuation setup filtered by trend, opening range and extension
// checks, with a second, independently-toggled confirmation gate.
package strategy

import (
	"math"

	"limitless/internal/analysis/indicator"
	"limitless/internal/market"
)

const (
	emaFastPeriod = 20
	emaSlowPeriod = 50
	touchLookback = 3
)

// EvalParams are the tolerances feeding qualification.
type EvalParams struct {
	VWAPTouchTolerance  float64 // proportional distance counting as a touch
	VWAPExtensionMaxPct float64 // max signed close-to-VWAP distance
}

// ConfirmParams toggles the confirmation sub-checks. Disabled checks pass
// vacuously.
type ConfirmParams struct {
	HigherLow      bool
	VWAPReclaim    bool
	VWAPRetest     bool
	RetestLookback int
}

// Qualification is the structured result of evaluating one symbol. The six
// booleans are independent; QualifiesAll is their conjunction with no
// weighting or partial credit.
type Qualification struct {
	Uptrend             bool
	AboveVWAP           bool
	AboveOpeningRange   bool
	TouchedVWAPRecently bool
	ClosedBackAboveVWAP bool
	NotExtended         bool

	Price         float64 // last close, the candidate entry reference
	SignalBarHigh float64 // last bar high, anchor for buy-stop entries
}

func (q Qualification) QualifiesAll() bool {
	return q.Uptrend &&
		q.AboveVWAP &&
		q.AboveOpeningRange &&
		q.TouchedVWAPRecently &&
		q.ClosedBackAboveVWAP &&
		q.NotExtended
}

// Evaluate computes the qualification for an ordered bar series against the
// opening-range high. A series too short for the slow EMA fails the trend
// check but still reports price fields.
func Evaluate(bars market.Series, orHigh float64, p EvalParams) Qualification {
	var q Qualification
	last, ok := bars.Last()
	if !ok {
		return q
	}
	q.Price = last.Close
	q.SignalBarHigh = last.High

	vwap := indicator.VWAP(bars)
	lastVWAP := vwap[len(vwap)-1]

	emaFast := indicator.EMA(bars.Closes(), emaFastPeriod)
	emaSlow := indicator.EMA(bars.Closes(), emaSlowPeriod)
	if len(emaFast) > 0 && len(emaSlow) > 0 {
		q.Uptrend = emaFast[len(emaFast)-1] > emaSlow[len(emaSlow)-1]
	}

	q.AboveVWAP = lastVWAP > 0 && last.Close > lastVWAP
	q.AboveOpeningRange = orHigh > 0 && last.Close > orHigh
	q.TouchedVWAPRecently = touchedVWAP(bars, vwap, p.VWAPTouchTolerance)
	q.ClosedBackAboveVWAP = q.AboveVWAP

	if lastVWAP > 0 {
		extension := (last.Close - lastVWAP) / lastVWAP
		q.NotExtended = extension <= p.VWAPExtensionMaxPct
	}
	return q
}

// touchedVWAP checks the last few bars for a VWAP touch, either a direct
// cross (low at or below VWAP) or a near-miss within the proportional
// tolerance.
func touchedVWAP(bars market.Series, vwap []float64, tolerance float64) bool {
	n := len(bars)
	if n == 0 || len(vwap) != n {
		return false
	}
	start := n - touchLookback
	if start < 0 {
		start = 0
	}
	for i := start; i < n; i++ {
		v := vwap[i]
		if v <= 0 {
			continue
		}
		if bars[i].Low <= v {
			return true
		}
		if math.Abs(bars[i].Low-v)/v <= tolerance {
			return true
		}
	}
	return false
}

// Confirm applies the secondary gate. All enabled sub-checks must hold.
func Confirm(bars market.Series, p ConfirmParams) bool {
	if len(bars) == 0 {
		return false
	}
	if p.HigherLow && !HasHigherLow(bars, touchLookback) {
		return false
	}
	if p.VWAPReclaim || p.VWAPRetest {
		vwap := indicator.VWAP(bars)
		if p.VWAPReclaim && !vwapReclaim(bars, vwap) {
			return false
		}
		if p.VWAPRetest && !vwapRetest(bars, vwap, p.RetestLookback) {
			return false
		}
	}
	return true
}

// HasHigherLow detects a local trough: the most recent low above the prior
// low, with that prior low at or below the low before it.
func HasHigherLow(bars market.Series, lookback int) bool {
	if len(bars) < lookback+1 {
		return false
	}
	lows := bars.Tail(lookback + 1).Lows()
	n := len(lows)
	return lows[n-1] > lows[n-2] && lows[n-2] <= lows[n-3]
}

func vwapReclaim(bars market.Series, vwap []float64) bool {
	n := len(bars)
	if n == 0 || len(vwap) != n {
		return false
	}
	return bars[n-1].Close > vwap[n-1]
}

// vwapRetest requires a pullback that held above VWAP within the lookback:
// at least one bar closed above VWAP while keeping its low at or above it.
func vwapRetest(bars market.Series, vwap []float64, lookback int) bool {
	n := len(bars)
	if n == 0 || len(vwap) != n {
		return false
	}
	if lookback < 2 {
		lookback = 2
	}
	start := n - lookback
	if start < 0 {
		start = 0
	}
	for i := start; i < n; i++ {
		if bars[i].Close > vwap[i] && bars[i].Low >= vwap[i] {
			return true
		}
	}
	return false
}
