package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"limitless/internal/analysis/indicator"
	"limitless/internal/events"
	"limitless/internal/gateway/broker"
	"limitless/internal/logger"
	"limitless/internal/market"
	"limitless/internal/pkg/timeutil"
	"limitless/internal/strategy"
)

// cancelStaleEntries expires pending orders older than the cancellation
// window. Broker cancellation is best effort; the cash refund is not.
// Callers hold e.mu.
func (e *Engine) cancelStaleEntries(ctx context.Context) error {
	now := e.nowFn()
	ttl := time.Duration(e.cfg.Engine.EntryCancelMinutes) * time.Minute

	for symbol, po := range e.pending {
		if now.Sub(po.PlacedAt) <= ttl {
			continue
		}
		if err := e.broker.CancelOrder(ctx, po.OrderID); err != nil {
			logger.Warnf("engine: cancel %s order %s: %v", symbol, po.OrderID, err)
		}
		if po.Bucket != "" {
			if err := e.ledger.RefundOnCancel(po.Bucket, float64(po.Qty)*po.EntryPrice); err != nil {
				return fmt.Errorf("refund cancelled entry %s: %w", symbol, err)
			}
		}
		e.aud.Log("entry_order_cancelled", symbol, map[string]any{"order_id": po.OrderID})
		e.pub.Publish(events.Info(symbol, "entry cancelled, time expired", map[string]any{"minutes": e.cfg.Engine.EntryCancelMinutes}))
		delete(e.pending, symbol)
	}
	return nil
}

// reconcilePositions promotes filled pending orders and evaluates the exit
// rules for every open position, in fixed priority order: Friday flatten,
// target hit, MAE cut, trailing stop. Callers hold e.mu.
func (e *Engine) reconcilePositions(ctx context.Context) error {
	now := e.nowFn()

	var live []broker.Position
	if !e.cfg.Broker.DryRun {
		var err error
		live, err = e.broker.GetPositions(ctx)
		if err != nil {
			return fmt.Errorf("positions: %w", err)
		}
	}

	for symbol, po := range e.pending {
		// Dry-run assumes immediate fills; live mode waits for the symbol to
		// show up in the broker's position list.
		filled := e.cfg.Broker.DryRun || hasSymbol(live, symbol)
		if !filled {
			continue
		}
		ps := &Position{
			Symbol:      symbol,
			EntryPrice:  po.EntryPrice,
			TargetPrice: po.TargetPrice,
			Qty:         po.Qty,
			OpenedAt:    now,
			Bucket:      po.Bucket,
		}
		e.positions = append(e.positions, ps)
		e.aud.Log("position_opened", symbol, map[string]any{
			"entry": ps.EntryPrice, "target": ps.TargetPrice, "qty": ps.Qty, "mode": string(e.state.Mode),
		})
		e.pub.Publish(events.Open(symbol, ps.Qty, ps.EntryPrice, ps.TargetPrice))
		delete(e.pending, symbol)
	}

	for i := 0; i < len(e.positions); {
		ps := e.positions[i]
		lp, err := e.broker.LatestTradePrice(ctx, ps.Symbol)
		if err != nil {
			if !errors.Is(err, broker.ErrNoTrade) {
				logger.Warnf("engine: latest price %s: %v", ps.Symbol, err)
			}
			i++
			continue
		}
		if lp > ps.MaxPrice {
			ps.MaxPrice = lp
		}

		if timeutil.FridayFlattenDue(now, e.cfg.Windows.FridayFlatten) {
			e.closeAt(i, ps.TargetPrice, events.ReasonFridayFlatten, now)
			continue
		}
		if lp >= ps.TargetPrice {
			e.closeAt(i, ps.TargetPrice, events.ReasonTargetHit, now)
			continue
		}
		if e.cfg.Strategy.MAEKATR > 0 {
			atr := e.fetchATR(ctx, ps.Symbol)
			if atr > 0 && lp < ps.EntryPrice-e.cfg.Strategy.MAEKATR*atr {
				e.closeAt(i, lp, events.ReasonMAECut, now)
				continue
			}
		}
		if e.cfg.Strategy.ATRTrailK > 0 &&
			(!e.cfg.Strategy.ExitInPowerWindowOnly || e.gate.InPowerWindow(now)) {
			atr := e.fetchATR(ctx, ps.Symbol)
			if atr > 0 {
				proposed := ps.MaxPrice - e.cfg.Strategy.ATRTrailK*atr
				if proposed > ps.TrailStop {
					ps.TrailStop = proposed
				}
				// The trail only fires into profit; a stop below entry waits
				// for the MAE rule instead.
				if ps.TrailStop > 0 && lp < ps.TrailStop && lp > ps.EntryPrice {
					e.closeAt(i, lp, events.ReasonATRTrailStop, now)
					continue
				}
			}
		}
		i++
	}
	return nil
}

// closeAt exits the position at index i. Proceeds go back through the ledger
// as an unsettled lot in cash mode, realized P&L rolls into the daily total,
// and the symbol's cooldown clock starts.
func (e *Engine) closeAt(i int, exitPrice float64, reason string, now time.Time) {
	ps := e.positions[i]
	if ps.Bucket != "" {
		proceeds := float64(ps.Qty) * exitPrice
		if err := e.ledger.AddUnsettledOnSell(ps.Bucket, proceeds, now); err != nil {
			logger.Errorf("engine: book proceeds %s: %v", ps.Symbol, err)
		}
	}
	realized := strategy.RealizedPnL(exitPrice, ps.EntryPrice, ps.Qty)
	e.state.RecordExit(ps.Symbol, realized, now)
	e.positions = append(e.positions[:i], e.positions[i+1:]...)

	e.aud.Log("position_closed", ps.Symbol, map[string]any{
		"exit_price": exitPrice, "realized": realized, "reason": reason,
	})
	e.pub.Publish(events.Close(ps.Symbol, exitPrice, realized, reason))
}

// fetchATR pulls a fresh series for exit-rule volatility. Zero means
// unavailable and disables ATR-based exits for this tick.
func (e *Engine) fetchATR(ctx context.Context, symbol string) float64 {
	limit := e.cfg.Strategy.ATRLen + 2
	if limit < 50 {
		limit = 50
	}
	bars, err := e.broker.GetBars(ctx, symbol, limit)
	if err != nil || len(bars) == 0 {
		return 0
	}
	return indicator.ATR(market.Series(bars), e.cfg.Strategy.ATRLen)
}

func hasSymbol(positions []broker.Position, symbol string) bool {
	for _, p := range positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}
