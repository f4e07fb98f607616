// Package risk holds the entry-admission predicates and the per-day trading
// state they read: capital mode, realized P&L against the daily caps, and the
// cooldown timestamps.
package risk

import "time"

// Mode is the capital regime the account operates under.
type Mode string

const (
	ModeCash   Mode = "cash"
	ModeMargin Mode = "margin"
)

// MarginEquityThresholdUSD is the pattern-day-trading proxy: accounts at or
// above it trade on margin, below it they are settlement constrained.
const MarginEquityThresholdUSD = 25000.0

// State is the mutable risk bookkeeping owned by the engine. It is not safe
// for concurrent use; the engine is its single writer.
type State struct {
	Mode             Mode
	DailyRealizedUSD float64
	DayStartEquity   float64

	PerSymbolLastExit map[string]time.Time
	GlobalLastEntry   time.Time
}

func NewState() *State {
	return &State{
		Mode:              ModeCash,
		PerSymbolLastExit: make(map[string]time.Time),
	}
}

// RefreshMode derives the capital mode from current account equity and pins
// the day-start equity on the first read of the process lifetime. Later reads
// never move the anchor, so the caps stay measured against one baseline.
func (s *State) RefreshMode(equity float64, threshold float64) {
	if threshold <= 0 {
		threshold = MarginEquityThresholdUSD
	}
	if equity >= threshold {
		s.Mode = ModeMargin
	} else {
		s.Mode = ModeCash
	}
	if s.DayStartEquity == 0 {
		s.DayStartEquity = equity
	}
}

// RecordExit accumulates realized P&L and stamps the symbol's cooldown clock.
func (s *State) RecordExit(symbol string, realizedUSD float64, at time.Time) {
	s.DailyRealizedUSD += realizedUSD
	s.PerSymbolLastExit[symbol] = at
}

// RecordEntry stamps the global cooldown clock.
func (s *State) RecordEntry(at time.Time) {
	s.GlobalLastEntry = at
}
