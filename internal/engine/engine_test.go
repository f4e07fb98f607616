package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"limitless/internal/config"
	"limitless/internal/gateway/broker"
	"limitless/internal/ledger"
	"limitless/internal/market"
	"limitless/internal/pkg/timeutil"
	"limitless/internal/risk"
	"limitless/internal/strategy"
)

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(broker.Account), args.Error(1)
}

func (m *MockBroker) GetBars(ctx context.Context, symbol string, limit int) ([]market.Bar, error) {
	args := m.Called(ctx, symbol, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]market.Bar), args.Error(1)
}

func (m *MockBroker) LatestTradePrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockBroker) PlaceBracketOrder(ctx context.Context, symbol string, qty int, entry broker.EntrySpec, targetPrice float64) (string, error) {
	args := m.Called(ctx, symbol, qty, entry, targetPrice)
	return args.String(0), args.Error(1)
}

func (m *MockBroker) CancelOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockBroker) GetPositions(ctx context.Context) ([]broker.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.Position), args.Error(1)
}

type auditRow struct {
	event  string
	symbol string
}

type stubAuditor struct {
	rows []auditRow
}

func (a *stubAuditor) Log(event, symbol string, payload map[string]any) {
	a.rows = append(a.rows, auditRow{event: event, symbol: symbol})
}

func (a *stubAuditor) has(event string) bool {
	for _, r := range a.rows {
		if r.event == event {
			return true
		}
	}
	return false
}

type stubPublisher struct {
	lines []string
}

func (p *stubPublisher) Publish(line string) { p.lines = append(p.lines, line) }

type stubWatchlist struct {
	profile config.WatchlistProfile
}

func (w *stubWatchlist) Snapshot() (config.WatchlistProfile, int) { return w.profile, 1 }

type stubEarnings struct {
	skip map[string]bool
}

func (e *stubEarnings) IsSkipDay(symbol string, _ time.Time) bool { return e.skip[symbol] }

func testConfig() config.Config {
	return config.Config{
		Broker: config.BrokerConfig{DryRun: true},
		Engine: config.EngineConfig{
			TickSeconds:        5,
			ErrorPauseSeconds:  2,
			EntryCancelMinutes: 2,
			EntryOrderType:     "buy_stop",
			BarLimit:           300,
		},
		Windows: config.WindowsConfig{
			MorningStart:  "09:45",
			MorningEnd:    "11:15",
			PowerStart:    "15:00",
			PowerEnd:      "15:55",
			FridayFlatten: "15:55",
			StretchCutoff: "15:30",
		},
		Strategy: config.StrategyConfig{
			TargetPct: 0.005,
			// Wide tolerances so the synthetic uptrend series qualifies.
			VWAPTouchTolerance:  1.0,
			VWAPExtensionMaxPct: 1.0,
			ATRLen:              14,
			RVOLMin:             0.5,
			SpreadMaxPct:        0.05,
		},
		Risk: config.RiskConfig{
			SoftCapPct:           0.01,
			HardCapPct:           0.015,
			ConcurrencyCap:       3,
			PerSymbolCooldownSec: 900,
			GlobalCooldownSec:    120,
			MarginEquityMinUSD:   25000,
		},
		Ledger: config.LedgerConfig{UtilizationPct: 0.93, SettleHourET: 9},
	}
}

func uptrendBars(n int) market.Series {
	start := time.Date(2025, 1, 7, 9, 30, 0, 0, timeutil.Eastern())
	bars := make(market.Series, n)
	for i := range bars {
		p := 100 + float64(i)*0.05
		bars[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   p,
			High:   p * 1.001,
			Low:    p * 0.999,
			Close:  p,
			Volume: 100000,
		}
	}
	return bars
}

type testEngine struct {
	*Engine
	broker *MockBroker
	ledger *ledger.Ledger
	aud    *stubAuditor
	pub    *stubPublisher
}

func newTestEngine(t *testing.T, cfg config.Config) *testEngine {
	t.Helper()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "buckets.json"), 4000, cfg.Ledger.SettleHourET)
	require.NoError(t, err)

	mb := &MockBroker{}
	aud := &stubAuditor{}
	pub := &stubPublisher{}
	e := New(cfg, Deps{
		Broker: mb,
		Ledger: led,
		Gate:   risk.NewGate(cfg.Risk, cfg.Windows),
		Watchlist: &stubWatchlist{profile: config.WatchlistProfile{
			Priority:           []string{"AAA", "BBB"},
			DefaultNotionalUSD: 5000,
		}},
		Earnings:  &stubEarnings{skip: map[string]bool{}},
		Auditor:   aud,
		Publisher: pub,
	})
	// Tuesday mid-morning, inside the entry window.
	e.nowFn = func() time.Time {
		return time.Date(2025, 1, 7, 10, 0, 0, 0, timeutil.Eastern())
	}
	return &testEngine{Engine: e, broker: mb, ledger: led, aud: aud, pub: pub}
}

func (te *testEngine) setNow(t time.Time) {
	te.nowFn = func() time.Time { return t }
}

func TestScanPlacesOneEntryPerTick(t *testing.T) {
	te := newTestEngine(t, testConfig())
	bars := uptrendBars(60)
	entry := bars[len(bars)-1].High

	te.broker.On("GetAccount", mock.Anything).Return(broker.Account{Equity: 30000}, nil)
	te.broker.On("GetBars", mock.Anything, "AAA", 300).Return([]market.Bar(bars), nil)
	te.broker.On("PlaceBracketOrder", mock.Anything, "AAA", mock.Anything, mock.Anything, mock.Anything).
		Return("ord-1", nil)

	require.NoError(t, te.scanAndEnter(context.Background()))

	// Only the first qualifying symbol got an order; BBB was never fetched.
	te.broker.AssertNumberOfCalls(t, "PlaceBracketOrder", 1)
	te.broker.AssertNotCalled(t, "GetBars", mock.Anything, "BBB", 300)

	require.Contains(t, te.pending, "AAA")
	po := te.pending["AAA"]
	assert.Equal(t, "ord-1", po.OrderID)
	assert.Equal(t, entry, po.EntryPrice)
	assert.Equal(t, int(5000/entry), po.Qty) // margin sizing from notional
	assert.Empty(t, po.Bucket)
	assert.True(t, te.aud.has("entry_order_placed"))
	assert.False(t, te.state.GlobalLastEntry.IsZero())
}

func TestScanCashModeConsumesLedger(t *testing.T) {
	te := newTestEngine(t, testConfig())
	bars := uptrendBars(60)
	entry := bars[len(bars)-1].High

	te.broker.On("GetAccount", mock.Anything).Return(broker.Account{Equity: 10000}, nil)
	te.broker.On("GetBars", mock.Anything, "AAA", 300).Return([]market.Bar(bars), nil)
	te.broker.On("PlaceBracketOrder", mock.Anything, "AAA", mock.Anything, mock.Anything, mock.Anything).
		Return("ord-1", nil)

	require.NoError(t, te.scanAndEnter(context.Background()))

	po := te.pending["AAA"]
	require.NotNil(t, po)
	assert.Equal(t, "A", po.Bucket)

	wantQty := int(2000 * 0.93 / entry)
	assert.Equal(t, wantQty, po.Qty)

	settled, err := te.ledger.SettledCash("A")
	require.NoError(t, err)
	assert.InDelta(t, 2000-float64(wantQty)*entry, settled, 1e-9)
}

func TestScanCashSingleSlot(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.positions = append(te.positions, &Position{Symbol: "CCC", Qty: 1})

	te.broker.On("GetAccount", mock.Anything).Return(broker.Account{Equity: 10000}, nil)

	require.NoError(t, te.scanAndEnter(context.Background()))

	// The cash slot is occupied: no symbol is even fetched.
	te.broker.AssertNotCalled(t, "GetBars", mock.Anything, mock.Anything, mock.Anything)
	te.broker.AssertNotCalled(t, "PlaceBracketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, te.pending)
}

func TestScanEarningsLockout(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.cal = &stubEarnings{skip: map[string]bool{"AAA": true, "BBB": true}}

	te.broker.On("GetAccount", mock.Anything).Return(broker.Account{Equity: 30000}, nil)

	require.NoError(t, te.scanAndEnter(context.Background()))

	te.broker.AssertNotCalled(t, "GetBars", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, te.pub.lines, 2)
	assert.Contains(t, te.pub.lines[0], "earnings lockout")
}

func TestCancelStaleEntryRefundsBucket(t *testing.T) {
	te := newTestEngine(t, testConfig())
	now := te.nowFn()

	require.NoError(t, te.ledger.ConsumeOnBuy("A", 1030.0))
	te.pending["AAA"] = &PendingOrder{
		Symbol:     "AAA",
		OrderID:    "ord-9",
		PlacedAt:   now.Add(-10 * time.Minute),
		Qty:        10,
		EntryPrice: 103.0,
		Bucket:     "A",
	}
	te.broker.On("CancelOrder", mock.Anything, "ord-9").Return(nil)

	require.NoError(t, te.cancelStaleEntries(context.Background()))

	assert.Empty(t, te.pending)
	settled, err := te.ledger.SettledCash("A")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, settled)
	assert.True(t, te.aud.has("entry_order_cancelled"))
}

func TestCancelKeepsFreshEntries(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.pending["AAA"] = &PendingOrder{
		Symbol:   "AAA",
		OrderID:  "ord-9",
		PlacedAt: te.nowFn().Add(-time.Minute),
	}

	require.NoError(t, te.cancelStaleEntries(context.Background()))
	assert.Len(t, te.pending, 1)
	te.broker.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything)
}

func TestDryRunFillPromotesPending(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.pending["AAA"] = &PendingOrder{
		Symbol:      "AAA",
		OrderID:     "ord-1",
		PlacedAt:    te.nowFn(),
		Qty:         10,
		EntryPrice:  100,
		TargetPrice: 100.5,
		Bucket:      "A",
	}
	te.broker.On("LatestTradePrice", mock.Anything, "AAA").Return(100.1, nil)

	require.NoError(t, te.reconcilePositions(context.Background()))

	assert.Empty(t, te.pending)
	require.Len(t, te.positions, 1)
	assert.Equal(t, "AAA", te.positions[0].Symbol)
	assert.Equal(t, "A", te.positions[0].Bucket)
	assert.True(t, te.aud.has("position_opened"))
}

func openPosition(te *testEngine, entry, target float64) *Position {
	ps := &Position{
		Symbol:      "AAA",
		EntryPrice:  entry,
		TargetPrice: target,
		Qty:         10,
		OpenedAt:    te.nowFn(),
		Bucket:      "A",
	}
	te.positions = append(te.positions, ps)
	return ps
}

func TestExitTargetHit(t *testing.T) {
	te := newTestEngine(t, testConfig())
	openPosition(te, 100, 100.5)
	te.broker.On("LatestTradePrice", mock.Anything, "AAA").Return(101.2, nil)

	require.NoError(t, te.reconcilePositions(context.Background()))

	assert.Empty(t, te.positions)
	// Exit price is the target, not the last trade.
	assert.InDelta(t, 5.0, te.state.DailyRealizedUSD, 1e-9)
	assert.Contains(t, te.state.PerSymbolLastExit, "AAA")

	// Cash-mode proceeds land as an unsettled lot, not settled cash.
	buckets := te.ledger.Buckets()
	require.Len(t, buckets[0].Unsettled, 1)
	assert.InDelta(t, 1005.0, buckets[0].Unsettled[0].Amount, 1e-9)
	assert.True(t, te.aud.has("position_closed"))
}

func TestExitFridayFlattenBeatsTarget(t *testing.T) {
	te := newTestEngine(t, testConfig())
	// Friday past the flatten deadline.
	te.setNow(time.Date(2025, 1, 10, 15, 58, 0, 0, timeutil.Eastern()))
	openPosition(te, 100, 100.5)
	te.broker.On("LatestTradePrice", mock.Anything, "AAA").Return(105.0, nil)

	require.NoError(t, te.reconcilePositions(context.Background()))

	assert.Empty(t, te.positions)
	// Flatten exits at the target price and records the flatten reason even
	// though the target was also crossed.
	assert.InDelta(t, 5.0, te.state.DailyRealizedUSD, 1e-9)
	require.NotEmpty(t, te.pub.lines)
	assert.Contains(t, te.pub.lines[len(te.pub.lines)-1], "Friday close")
	assert.NotContains(t, te.pub.lines[len(te.pub.lines)-1], "Took profit")
}

func TestExitMAECut(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.MAEKATR = 3
	te := newTestEngine(t, cfg)
	openPosition(te, 100, 110)

	te.broker.On("LatestTradePrice", mock.Anything, "AAA").Return(90.0, nil)
	te.broker.On("GetBars", mock.Anything, "AAA", 50).Return([]market.Bar(uptrendBars(60)), nil)

	require.NoError(t, te.reconcilePositions(context.Background()))

	assert.Empty(t, te.positions)
	assert.InDelta(t, -100.0, te.state.DailyRealizedUSD, 1e-9) // (90-100)*10
	assert.Contains(t, te.pub.lines[len(te.pub.lines)-1], "Cut loss early")
}

func TestTrailingStopNeverExitsAtLoss(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.ATRTrailK = 1
	te := newTestEngine(t, cfg)
	ps := openPosition(te, 100, 120)
	ps.MaxPrice = 110

	// Below the trail level but also below entry: the trail must not fire.
	te.broker.On("LatestTradePrice", mock.Anything, "AAA").Return(99.0, nil)
	te.broker.On("GetBars", mock.Anything, "AAA", 50).Return([]market.Bar(uptrendBars(60)), nil)

	require.NoError(t, te.reconcilePositions(context.Background()))

	require.Len(t, te.positions, 1)
	assert.Greater(t, te.positions[0].TrailStop, 0.0) // armed but not fired
}

func TestTrailingStopExitsInProfit(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.ATRTrailK = 1
	te := newTestEngine(t, cfg)
	ps := openPosition(te, 100, 120)
	ps.MaxPrice = 110

	te.broker.On("LatestTradePrice", mock.Anything, "AAA").Return(101.0, nil)
	te.broker.On("GetBars", mock.Anything, "AAA", 50).Return([]market.Bar(uptrendBars(60)), nil)

	require.NoError(t, te.reconcilePositions(context.Background()))

	assert.Empty(t, te.positions)
	assert.InDelta(t, 10.0, te.state.DailyRealizedUSD, 1e-9) // (101-100)*10
	assert.Contains(t, te.pub.lines[len(te.pub.lines)-1], "Trailing stop")
}

func TestStatusSnapshot(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.state.Mode = risk.ModeMargin
	te.state.DayStartEquity = 30000
	te.state.DailyRealizedUSD = 300
	openPosition(te, 100, 100.5)

	st := te.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "margin", st.Mode)
	assert.True(t, st.SoftCapHit)
	assert.False(t, st.HardCapHit)
	require.Len(t, st.Positions, 1)
	assert.Empty(t, st.PendingOrders)

	te.Stop()
	assert.False(t, te.Status().Running)
	te.Start()
	assert.True(t, te.Status().Running)
}

func TestTargetMatchesPricing(t *testing.T) {
	te := newTestEngine(t, testConfig())
	bars := uptrendBars(60)
	entry := bars[len(bars)-1].High

	te.broker.On("GetAccount", mock.Anything).Return(broker.Account{Equity: 30000}, nil)
	te.broker.On("GetBars", mock.Anything, "AAA", 300).Return([]market.Bar(bars), nil)
	te.broker.On("PlaceBracketOrder", mock.Anything, "AAA", mock.Anything, mock.Anything, mock.Anything).
		Return("ord-1", nil)

	require.NoError(t, te.scanAndEnter(context.Background()))

	po := te.pending["AAA"]
	require.NotNil(t, po)
	assert.Equal(t, strategy.TargetPrice(entry, 0.005, 0, 0), po.TargetPrice)
}
