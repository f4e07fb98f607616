// Package app assembles the bot from its configuration: broker gateway,
// settlement ledger, risk gate, engine, audit store, notification fanout and
// the control API, then runs them together.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"limitless/internal/audit"
	"limitless/internal/config"
	"limitless/internal/data/earnings"
	"limitless/internal/engine"
	"limitless/internal/events"
	"limitless/internal/gateway/alpaca"
	"limitless/internal/gateway/notifier"
	"limitless/internal/ledger"
	"limitless/internal/logger"
	"limitless/internal/risk"
	"limitless/internal/scheduler"
	httpapi "limitless/internal/transport/http"
)

const earningsRefreshInterval = 6 * time.Hour

type App struct {
	cfg config.Config

	engine    *engine.Engine
	ledger    *ledger.Ledger
	hub       *events.Hub
	audit     *audit.Store
	watchlist *config.WatchlistLoader
	calendar  *earnings.Calendar
	telegram  notifier.TextNotifier
	http      *httpapi.Server
}

func New(cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	led, err := ledger.Open(cfg.Ledger.Path, cfg.Ledger.InitTotalUSD, cfg.Ledger.SettleHourET)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.ledger = led

	auditStore, err := audit.NewStore(cfg.Audit.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	a.audit = auditStore

	a.watchlist = config.NewWatchlistLoader(cfg.Watchlist.Path)
	if err := a.watchlist.Load(); err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}

	a.hub = events.NewHub()
	a.calendar = earnings.NewCalendar(cfg.Earnings.FinnhubAPIKey, cfg.Earnings.SkipNextDay)

	if cfg.Notify.Telegram.Enabled {
		a.telegram = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	broker := alpaca.New(cfg.Broker, cfg.Ledger.InitTotalUSD)
	a.engine = engine.New(cfg, engine.Deps{
		Broker:    broker,
		Ledger:    led,
		Gate:      risk.NewGate(cfg.Risk, cfg.Windows),
		Watchlist: a.watchlist,
		Earnings:  a.calendar,
		Auditor:   auditStore,
		Publisher: a.hub,
	})

	srv, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.App.HTTPAddr,
		ControlToken: cfg.App.ControlToken,
		Engine:       a.engine,
		Ledger:       led,
		Audit:        auditStore,
		Hub:          a.hub,
	})
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}
	a.http = srv

	return a, nil
}

// Run drives all long-lived components until ctx is cancelled or one of them
// fails.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		defer a.audit.Close()
		return a.engine.Run(ctx)
	})

	group.Go(func() error {
		if err := a.watchlist.Watch(ctx); err != nil {
			logger.Warnf("app: watchlist watcher stopped: %v", err)
		}
		return nil
	})

	group.Go(func() error {
		sched := scheduler.NewIntervalScheduler(earningsRefreshInterval)
		sched.RunImmediately = true
		sched.Start(ctx, a.refreshEarnings)
		return nil
	})

	if a.telegram != nil {
		group.Go(func() error {
			a.relayToTelegram(ctx)
			return nil
		})
	}

	logger.Infof("app: started, http=%s symbols=%d", a.http.Addr(), a.symbolCount())
	return group.Wait()
}

func (a *App) refreshEarnings() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	profile, _ := a.watchlist.Snapshot()
	for _, sym := range profile.Symbols {
		if err := a.calendar.RefreshSymbol(ctx, sym); err != nil {
			logger.Warnf("app: earnings refresh %s: %v", sym, err)
		}
	}
}

// relayToTelegram forwards operator lines to the notification channel. Send
// failures are logged and dropped; narration must never stall the engine.
func (a *App) relayToTelegram(ctx context.Context) {
	lines, cancel := a.hub.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-lines:
			if err := a.telegram.SendText(line); err != nil {
				logger.Warnf("app: telegram send: %v", err)
			}
		}
	}
}

func (a *App) symbolCount() int {
	profile, _ := a.watchlist.Snapshot()
	return len(profile.Symbols)
}

// Engine exposes the engine instance for testing harnesses.
func (a *App) Engine() *engine.Engine { return a.engine }
