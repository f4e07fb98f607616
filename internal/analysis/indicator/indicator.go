// Package indicator wraps the TALib primitives the entry rules consume and
// adds the session-anchored ones TALib lacks (cumulative VWAP, opening range,
// relative volume, bar-proxy spread).
package indicator

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"limitless/internal/market"
)

// EMA returns the exponential moving average series for the closes.
func EMA(closes []float64, period int) []float64 {
	if len(closes) == 0 || period <= 0 || len(closes) < period {
		return nil
	}
	return talib.Ema(closes, period)
}

// ATR returns the latest Average True Range over the window, or 0 when the
// series is too short to produce one.
func ATR(bars market.Series, period int) float64 {
	if period <= 0 {
		period = 14
	}
	min := period + 1
	if min < 3 {
		min = 3
	}
	if len(bars) < min {
		return 0
	}
	series := talib.Atr(bars.Highs(), bars.Lows(), bars.Closes(), period)
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}

// VWAP returns the cumulative volume-weighted average price, anchored at the
// first bar of the series (session start). Zero cumulative volume carries the
// typical price forward rather than dividing by zero.
func VWAP(bars market.Series) []float64 {
	out := make([]float64, len(bars))
	var cumPV, cumVol float64
	for i, b := range bars {
		tp := (b.High + b.Low + b.Close) / 3.0
		cumPV += tp * b.Volume
		cumVol += b.Volume
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		} else {
			out[i] = tp
		}
	}
	return out
}

// OpeningRange returns the high/low of bars within [sessionStart,
// sessionStart+15m). ok is false when no bar falls inside the range.
func OpeningRange(bars market.Series, sessionStart time.Time) (high, low float64, ok bool) {
	end := sessionStart.Add(15 * time.Minute)
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.Time.Before(sessionStart) || !b.Time.Before(end) {
			continue
		}
		ok = true
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	if !ok {
		return 0, 0, false
	}
	return high, low, true
}

// RVOL is the last bar's volume relative to the mean of the bars before it,
// over at most baseLen trailing bars. Returns 1 when the series is too short
// to say anything.
func RVOL(bars market.Series, baseLen int) float64 {
	if baseLen <= 0 {
		baseLen = 50
	}
	recent := bars.Tail(baseLen)
	if len(recent) < 5 {
		return 1
	}
	var sum float64
	for _, b := range recent[:len(recent)-1] {
		sum += b.Volume
	}
	avg := sum / float64(len(recent)-1)
	if avg <= 0 {
		return 1
	}
	return recent[len(recent)-1].Volume / avg
}

// SpreadPct approximates the bid-ask spread from the last bar's high/low
// range when quote data is unavailable.
func SpreadPct(bars market.Series) float64 {
	last, ok := bars.Last()
	if !ok || last.Close <= 0 {
		return 0
	}
	spread := math.Abs(last.High - last.Low)
	return spread / math.Max(1e-6, last.Close)
}
