package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limitless/internal/market"
	"limitless/internal/pkg/timeutil"
)

func flatBars(n int, price, volume float64) market.Series {
	start := time.Date(2025, 1, 7, 9, 30, 0, 0, timeutil.Eastern())
	bars := make(market.Series, n)
	for i := range bars {
		bars[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: volume,
		}
	}
	return bars
}

func TestVWAPFlatSeries(t *testing.T) {
	bars := flatBars(10, 100, 1000)
	vwap := VWAP(bars)
	require.Len(t, vwap, 10)
	for _, v := range vwap {
		assert.InDelta(t, 100.0, v, 1e-9)
	}
}

func TestVWAPZeroVolumeCarriesTypicalPrice(t *testing.T) {
	bars := flatBars(3, 50, 0)
	vwap := VWAP(bars)
	for _, v := range vwap {
		assert.InDelta(t, 50.0, v, 1e-9)
	}
}

func TestOpeningRange(t *testing.T) {
	start := time.Date(2025, 1, 7, 9, 30, 0, 0, timeutil.Eastern())
	bars := flatBars(30, 100, 1000)
	bars[3].High = 105 // inside the first 15 minutes
	bars[3].Low = 95
	bars[20].High = 120 // outside, must not count

	high, low, ok := OpeningRange(bars, start)
	require.True(t, ok)
	assert.Equal(t, 105.0, high)
	assert.Equal(t, 95.0, low)

	_, _, ok = OpeningRange(bars, start.Add(10*time.Hour))
	assert.False(t, ok)
}

func TestRVOL(t *testing.T) {
	bars := flatBars(60, 100, 1000)
	assert.InDelta(t, 1.0, RVOL(bars, 50), 1e-9)

	bars[len(bars)-1].Volume = 2000
	assert.InDelta(t, 2.0, RVOL(bars, 50), 1e-9)

	// Too short to estimate.
	assert.Equal(t, 1.0, RVOL(flatBars(3, 100, 1000), 50))
}

func TestSpreadPct(t *testing.T) {
	bars := flatBars(5, 100, 1000)
	assert.Zero(t, SpreadPct(bars))

	bars[len(bars)-1].High = 100.2
	bars[len(bars)-1].Low = 99.8
	assert.InDelta(t, 0.004, SpreadPct(bars), 1e-9)
}

func TestATRShortSeriesIsZero(t *testing.T) {
	assert.Zero(t, ATR(flatBars(5, 100, 1000), 14))
}

func TestATRUptrend(t *testing.T) {
	start := time.Date(2025, 1, 7, 9, 30, 0, 0, timeutil.Eastern())
	bars := make(market.Series, 40)
	for i := range bars {
		p := 100 + float64(i)*0.5
		bars[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   p,
			High:   p + 0.4,
			Low:    p - 0.4,
			Close:  p,
			Volume: 1000,
		}
	}
	atr := ATR(bars, 14)
	assert.Greater(t, atr, 0.0)
}
