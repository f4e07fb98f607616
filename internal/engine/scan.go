package engine

import (
	"context"
	"fmt"
	"time"

	"limitless/internal/analysis/indicator"
	"limitless/internal/events"
	"limitless/internal/gateway/broker"
	"limitless/internal/logger"
	"limitless/internal/market"
	"limitless/internal/pkg/timeutil"
	"limitless/internal/risk"
	"limitless/internal/strategy"
)

const rvolBaseLen = 50

// scanAndEnter walks the watchlist in priority order and places at most one
// entry order. Admission is strictly serialized: the first symbol that clears
// every gate wins the tick. Callers hold e.mu.
func (e *Engine) scanAndEnter(ctx context.Context) error {
	now := e.nowFn()

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	e.state.RefreshMode(acct.Equity, e.cfg.Risk.MarginEquityMinUSD)

	profile, _ := e.watch.Snapshot()
	for _, symbol := range profile.Priority {
		if e.cal.IsSkipDay(symbol, now) {
			e.pub.Publish(events.Skip(symbol, "earnings lockout", nil))
			continue
		}
		if ok, _ := e.gate.CanOpen(now, symbol, e.state, len(e.positions), len(e.pending)); !ok {
			continue
		}

		bars, err := e.broker.GetBars(ctx, symbol, e.cfg.Engine.BarLimit)
		if err != nil {
			logger.Warnf("engine: bars %s: %v", symbol, err)
			continue
		}
		series := market.Series(bars)
		last, ok := series.Last()
		if !ok {
			continue
		}

		sessionOpen, err := timeutil.ParseClock("09:30", last.Time)
		if err != nil {
			continue
		}
		orHigh, _, _ := indicator.OpeningRange(series, sessionOpen)

		q := strategy.Evaluate(series, orHigh, strategy.EvalParams{
			VWAPTouchTolerance:  e.cfg.Strategy.VWAPTouchTolerance,
			VWAPExtensionMaxPct: e.cfg.Strategy.VWAPExtensionMaxPct,
		})
		if !q.QualifiesAll() {
			e.pub.Publish(events.Skip(symbol, "setup invalid against entry criteria", nil))
			continue
		}

		if !strategy.Confirm(series, strategy.ConfirmParams{
			HigherLow:      e.cfg.Strategy.ConfirmHigherLow,
			VWAPReclaim:    e.cfg.Strategy.ConfirmVWAPReclaim,
			VWAPRetest:     e.cfg.Strategy.RequireVWAPRetest,
			RetestLookback: e.cfg.Strategy.VWAPRetestLookback,
		}) {
			e.aud.Log("entry_rejected_confirmation", symbol, nil)
			e.pub.Publish(events.Skip(symbol, "confirmation not satisfied (VWAP/Higher-low/Retest)", nil))
			continue
		}

		if !e.passesGuardrails(symbol, series) {
			continue
		}

		price, signalHigh := q.Price, q.SignalBarHigh
		if e.cfg.Strategy.SlippageMaxPct > 0 && signalHigh > 0 {
			run := strategy.RunPct(price, signalHigh)
			if run > e.cfg.Strategy.SlippageMaxPct {
				e.aud.Log("entry_skipped_slippage", symbol, map[string]any{"run_pct": run, "max": e.cfg.Strategy.SlippageMaxPct})
				e.pub.Publish(events.Skip(symbol, "price ran too far past signal", map[string]any{"run_pct": run, "max": e.cfg.Strategy.SlippageMaxPct}))
				continue
			}
		}

		atr := indicator.ATR(series, e.cfg.Strategy.ATRLen)
		entryPrice := price
		if e.cfg.Engine.EntryOrderType == "buy_stop" {
			entryPrice = signalHigh
		}
		target := strategy.TargetPrice(entryPrice, e.cfg.Strategy.TargetPct, atr, e.cfg.Strategy.ATRTakeProfitK)

		var qty int
		var bucket string
		if e.state.Mode == risk.ModeCash {
			qty, bucket = e.sizeCashMode(now, entryPrice)
			if qty <= 0 || bucket == "" {
				e.pub.Publish(events.Skip(symbol, "insufficient settled cash", nil))
				continue
			}
			if err := e.ledger.ConsumeOnBuy(bucket, float64(qty)*entryPrice); err != nil {
				logger.Warnf("engine: consume %s: %v", symbol, err)
				e.pub.Publish(events.Skip(symbol, "ledger consume failed", nil))
				continue
			}
		} else {
			qty = sizeMargin(profile.NotionalFor(symbol), entryPrice)
		}

		spec := broker.EntrySpec{LimitPrice: price}
		if e.cfg.Engine.EntryOrderType == "buy_stop" {
			spec = broker.EntrySpec{StopPrice: signalHigh}
		}
		orderID, err := e.broker.PlaceBracketOrder(ctx, symbol, qty, spec, target)
		if err != nil {
			// The tick must not half-commit: give the debit back before
			// surfacing the failure.
			if bucket != "" {
				if rerr := e.ledger.RefundOnCancel(bucket, float64(qty)*entryPrice); rerr != nil {
					logger.Errorf("engine: refund after failed order %s: %v", symbol, rerr)
				}
			}
			return fmt.Errorf("place order %s: %w", symbol, err)
		}

		e.pending[symbol] = &PendingOrder{
			Symbol:      symbol,
			OrderID:     orderID,
			PlacedAt:    now,
			Qty:         qty,
			EntryPrice:  entryPrice,
			TargetPrice: target,
			Bucket:      bucket,
		}
		e.state.RecordEntry(now)
		e.aud.Log("entry_order_placed", symbol, map[string]any{
			"qty": qty, "entry": entryPrice, "target": target, "mode": string(e.state.Mode),
		})
		e.pub.Publish(events.Entry(symbol, qty, entryPrice, target, string(e.state.Mode)))
		break
	}
	return nil
}

// passesGuardrails applies the hard pre-trade checks: relative volume floor
// and spread ceiling.
func (e *Engine) passesGuardrails(symbol string, series market.Series) bool {
	rvol := indicator.RVOL(series, rvolBaseLen)
	if rvol < e.cfg.Strategy.RVOLMin {
		e.aud.Log("entry_skipped_rvol", symbol, map[string]any{"rvol": rvol, "min": e.cfg.Strategy.RVOLMin})
		e.pub.Publish(events.Skip(symbol, "insufficient relative volume", map[string]any{"rvol": rvol, "min": e.cfg.Strategy.RVOLMin}))
		return false
	}
	spread := indicator.SpreadPct(series)
	if spread > e.cfg.Strategy.SpreadMaxPct {
		e.aud.Log("entry_skipped_spread", symbol, map[string]any{"spread_pct": spread, "max": e.cfg.Strategy.SpreadMaxPct})
		e.pub.Publish(events.Skip(symbol, "spread too wide", map[string]any{"spread_pct": spread, "max": e.cfg.Strategy.SpreadMaxPct}))
		return false
	}
	return true
}

// sizeCashMode picks a bucket with enough settled cash and sizes the order to
// the configured utilization of that bucket.
func (e *Engine) sizeCashMode(now time.Time, price float64) (int, string) {
	if err := e.ledger.ReleaseSettled(now); err != nil {
		logger.Warnf("engine: release settled: %v", err)
	}
	bucket, ok := e.ledger.PickBucket(price)
	if !ok {
		return 0, ""
	}
	settled, err := e.ledger.SettledCash(bucket)
	if err != nil {
		return 0, ""
	}
	spend := settled * e.cfg.Ledger.UtilizationPct
	qty := int(spend / price)
	if qty < 1 {
		qty = 1
	}
	return qty, bucket
}

func sizeMargin(notional, price float64) int {
	qty := int(notional / price)
	if qty < 1 {
		qty = 1
	}
	return qty
}
