package risk

import (
	"time"

	"limitless/internal/config"
	"limitless/internal/pkg/timeutil"
)

// Reject reasons surfaced in skip events and audit rows.
const (
	ReasonOutsideWindow  = "outside entry window"
	ReasonSymbolCooldown = "symbol cooldown active"
	ReasonGlobalCooldown = "global cooldown active"
	ReasonConcurrencyCap = "concurrency cap reached"
	ReasonHardCap        = "daily hard cap hit"
	ReasonSoftCap        = "daily soft cap hit"
	ReasonSlotOccupied   = "cash slot occupied"
)

// Gate evaluates whether a new entry may be attempted. It is a pure predicate
// over the clock and the engine's risk state; it never mutates anything.
type Gate struct {
	cfg     config.RiskConfig
	morning timeutil.Window
	power   timeutil.Window
	stretch string
}

func NewGate(cfg config.RiskConfig, win config.WindowsConfig) *Gate {
	return &Gate{
		cfg:     cfg,
		morning: timeutil.Window{Start: win.MorningStart, End: win.MorningEnd},
		power:   timeutil.Window{Start: win.PowerStart, End: win.PowerEnd},
		stretch: win.StretchCutoff,
	}
}

// InEntryWindow reports whether now falls in either configured session window.
func (g *Gate) InEntryWindow(now time.Time) bool {
	return g.morning.Contains(now) || g.power.Contains(now)
}

// InPowerWindow reports whether now falls in the power-hour window.
func (g *Gate) InPowerWindow(now time.Time) bool {
	return g.power.Contains(now)
}

// CapsState returns the soft and hard daily-cap flags. Both are false when no
// day-start equity baseline exists yet.
func (g *Gate) CapsState(st *State) (softHit, hardHit bool) {
	if st.DayStartEquity <= 0 {
		return false, false
	}
	pct := st.DailyRealizedUSD / st.DayStartEquity
	return pct >= g.cfg.SoftCapPct, pct >= g.cfg.HardCapPct
}

// CanOpen decides whether the engine may attempt a new entry for symbol at
// now. On rejection the returned reason names the first predicate that failed.
func (g *Gate) CanOpen(now time.Time, symbol string, st *State, openPositions, pendingOrders int) (bool, string) {
	if !g.InEntryWindow(now) {
		return false, ReasonOutsideWindow
	}
	if last, ok := st.PerSymbolLastExit[symbol]; ok {
		if now.Sub(last) < time.Duration(g.cfg.PerSymbolCooldownSec)*time.Second {
			return false, ReasonSymbolCooldown
		}
	}
	if !st.GlobalLastEntry.IsZero() {
		if now.Sub(st.GlobalLastEntry) < time.Duration(g.cfg.GlobalCooldownSec)*time.Second {
			return false, ReasonGlobalCooldown
		}
	}

	if st.Mode == ModeMargin {
		if openPositions >= g.cfg.ConcurrencyCap {
			return false, ReasonConcurrencyCap
		}
		softHit, hardHit := g.CapsState(st)
		if hardHit {
			return false, ReasonHardCap
		}
		if softHit {
			// The soft cap freezes the book, except a single stretch entry
			// when flat and the stretch cutoff has not passed yet.
			if openPositions > 0 {
				return false, ReasonSoftCap
			}
			cutoff, err := timeutil.ParseClock(g.stretch, now)
			if err != nil || now.After(cutoff) {
				return false, ReasonSoftCap
			}
		}
		return true, ""
	}

	// Cash mode is single slot across the whole book.
	if openPositions > 0 || pendingOrders > 0 {
		return false, ReasonSlotOccupied
	}
	return true, ""
}
