package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limitless/internal/pkg/timeutil"
)

func newTestLedger(t *testing.T, total float64) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buckets.json")
	l, err := Open(path, total, 9)
	require.NoError(t, err)
	return l
}

func totalValue(l *Ledger) float64 {
	var sum float64
	for _, b := range l.Buckets() {
		sum += b.Total()
	}
	return sum
}

func et(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, timeutil.Eastern())
}

func TestOpenSeedsEvenSplit(t *testing.T) {
	l := newTestLedger(t, 4000)
	buckets := l.Buckets()
	require.Len(t, buckets, 2)
	assert.Equal(t, "A", buckets[0].Name)
	assert.Equal(t, "B", buckets[1].Name)
	assert.Equal(t, 2000.0, buckets[0].SettledCash)
	assert.Equal(t, 2000.0, buckets[1].SettledCash)
}

func TestOpenReloadsPersistedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buckets.json")
	l, err := Open(path, 4000, 9)
	require.NoError(t, err)
	require.NoError(t, l.ConsumeOnBuy("A", 500))

	reloaded, err := Open(path, 999999, 9) // init total must be ignored
	require.NoError(t, err)
	settled, err := reloaded.SettledCash("A")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, settled)
}

func TestPickBucketStableOrder(t *testing.T) {
	l := newTestLedger(t, 4000)

	name, ok := l.PickBucket(1)
	require.True(t, ok)
	assert.Equal(t, "A", name)

	// Drain A below the need; B should be picked next.
	require.NoError(t, l.ConsumeOnBuy("A", 1999))
	name, ok = l.PickBucket(500)
	require.True(t, ok)
	assert.Equal(t, "B", name)

	_, ok = l.PickBucket(1e9)
	assert.False(t, ok)
}

func TestConsumeOnBuyInsufficient(t *testing.T) {
	l := newTestLedger(t, 4000) // 2000 per bucket

	name, ok := l.PickBucket(1)
	require.True(t, ok)
	assert.Equal(t, "A", name)

	err := l.ConsumeOnBuy("A", 2500)
	require.ErrorIs(t, err, ErrInsufficientSettledCash)

	// Failed consume must not move money.
	settled, err := l.SettledCash("A")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, settled)
}

func TestConsumeUnknownBucket(t *testing.T) {
	l := newTestLedger(t, 4000)
	assert.ErrorIs(t, l.ConsumeOnBuy("Z", 1), ErrUnknownBucket)
	assert.ErrorIs(t, l.AddUnsettledOnSell("Z", 1, time.Now()), ErrUnknownBucket)
	assert.ErrorIs(t, l.RefundOnCancel("Z", 1), ErrUnknownBucket)
}

func TestSettlementTiming(t *testing.T) {
	l := newTestLedger(t, 4000)
	// Tuesday morning sale settles Wednesday 09:00 ET.
	saleAt := et(2025, time.January, 7, 10, 0)
	maturity := et(2025, time.January, 8, 9, 0)

	require.NoError(t, l.ConsumeOnBuy("A", 10))
	require.NoError(t, l.AddUnsettledOnSell("A", 10, saleAt))

	// Any instant before maturity: still unsettled.
	require.NoError(t, l.ReleaseSettled(maturity.Add(-time.Minute)))
	buckets := l.Buckets()
	assert.Len(t, buckets[0].Unsettled, 1)
	assert.Equal(t, 1990.0, buckets[0].SettledCash)

	// At/after maturity: fully released.
	require.NoError(t, l.ReleaseSettled(maturity))
	buckets = l.Buckets()
	assert.Empty(t, buckets[0].Unsettled)
	assert.Equal(t, 2000.0, buckets[0].SettledCash)
}

func TestFridaySaleSettlesMonday(t *testing.T) {
	l := newTestLedger(t, 4000)
	saleAt := et(2025, time.January, 10, 15, 0) // Friday
	require.NoError(t, l.AddUnsettledOnSell("B", 100, saleAt))

	lot := l.Buckets()[1].Unsettled[0]
	assert.Equal(t, et(2025, time.January, 13, 9, 0), lot.SettlesAt)
}

func TestConservation(t *testing.T) {
	l := newTestLedger(t, 4000)
	now := et(2025, time.January, 7, 10, 0)

	before := totalValue(l)

	// Buy 1200, sell back 1250 (realized +50), release later.
	require.NoError(t, l.ConsumeOnBuy("A", 1200))
	assert.InDelta(t, before-1200, totalValue(l), 1e-9)

	require.NoError(t, l.AddUnsettledOnSell("A", 1250, now))
	assert.InDelta(t, before+50, totalValue(l), 1e-9)

	// Release changes composition, never total.
	require.NoError(t, l.ReleaseSettled(now.AddDate(0, 0, 7)))
	assert.InDelta(t, before+50, totalValue(l), 1e-9)

	// Settled cash never went negative anywhere.
	for _, b := range l.Buckets() {
		assert.GreaterOrEqual(t, b.SettledCash, 0.0)
	}
}

func TestRefundOnCancel(t *testing.T) {
	l := newTestLedger(t, 4000)
	require.NoError(t, l.ConsumeOnBuy("A", 700))
	require.NoError(t, l.RefundOnCancel("A", 700))

	settled, err := l.SettledCash("A")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, settled)
	// Refund is immediate: nothing sits in the unsettled queue.
	assert.Empty(t, l.Buckets()[0].Unsettled)
}
