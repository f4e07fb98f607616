// Package engine runs the trading control loop. Each tick it expires stale
// entry orders, reconciles fills and exit rules for open positions, then
// scans the watchlist for at most one new entry. All trading state lives
// here, behind a single mutex; the engine is the only writer.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"limitless/internal/config"
	"limitless/internal/gateway/broker"
	"limitless/internal/ledger"
	"limitless/internal/logger"
	"limitless/internal/pkg/timeutil"
	"limitless/internal/risk"
)

type Engine struct {
	cfg    config.Config
	broker broker.Broker
	ledger *ledger.Ledger
	gate   *risk.Gate
	watch  Watchlist
	cal    EarningsCalendar
	aud    Auditor
	pub    Publisher

	nowFn func() time.Time

	mu        sync.Mutex
	running   bool
	state     *risk.State
	positions []*Position
	pending   map[string]*PendingOrder
}

type Deps struct {
	Broker    broker.Broker
	Ledger    *ledger.Ledger
	Gate      *risk.Gate
	Watchlist Watchlist
	Earnings  EarningsCalendar
	Auditor   Auditor
	Publisher Publisher
}

func New(cfg config.Config, d Deps) *Engine {
	return &Engine{
		cfg:     cfg,
		broker:  d.Broker,
		ledger:  d.Ledger,
		gate:    d.Gate,
		watch:   d.Watchlist,
		cal:     d.Earnings,
		aud:     d.Auditor,
		pub:     d.Publisher,
		nowFn:   timeutil.NowET,
		running: true,
		state:   risk.NewState(),
		pending: make(map[string]*PendingOrder),
	}
}

// Run drives the tick loop until ctx is cancelled. A failed tick logs,
// pauses briefly and continues; the loop never dies on a single bad tick.
func (e *Engine) Run(ctx context.Context) error {
	tick := time.Duration(e.cfg.Engine.TickSeconds) * time.Second
	pause := time.Duration(e.cfg.Engine.ErrorPauseSeconds) * time.Second

	logger.Infof("engine: loop started, tick=%s dry_run=%v", tick, e.cfg.Broker.DryRun)
	for {
		delay := tick
		if e.Running() {
			if err := e.safeTick(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Errorf("engine: tick failed: %v", err)
				e.aud.Log("engine_error", "", map[string]any{"msg": err.Error()})
				e.pub.Publish(fmt.Sprintf("engine: error: %v", err))
				delay = pause
			}
		}
		select {
		case <-ctx.Done():
			logger.Infof("engine: loop stopped")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// safeTick runs one full cancel/reconcile/scan pass under the state mutex,
// converting panics into tick errors so the loop survives them.
func (e *Engine) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cancelStaleEntries(ctx); err != nil {
		return err
	}
	if err := e.reconcilePositions(ctx); err != nil {
		return err
	}
	return e.scanAndEnter(ctx)
}

// Start resumes ticking after a Stop.
func (e *Engine) Start() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	logger.Infof("engine: started")
}

// Stop pauses the loop without tearing it down; open positions and pending
// orders are left untouched until Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	logger.Infof("engine: stopped")
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status snapshots the trading state for the control API.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	soft, hard := e.gate.CapsState(e.state)
	st := Status{
		Running:          e.running,
		Mode:             string(e.state.Mode),
		DryRun:           e.cfg.Broker.DryRun,
		DayStartEquity:   e.state.DayStartEquity,
		DailyRealizedUSD: e.state.DailyRealizedUSD,
		SoftCapHit:       soft,
		HardCapHit:       hard,
		Positions:        make([]Position, 0, len(e.positions)),
		PendingOrders:    make([]PendingOrder, 0, len(e.pending)),
	}
	for _, p := range e.positions {
		st.Positions = append(st.Positions, *p)
	}
	for _, po := range e.pending {
		st.PendingOrders = append(st.PendingOrders, *po)
	}
	return st
}
