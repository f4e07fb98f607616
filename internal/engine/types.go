package engine

import (
	"time"

	"limitless/internal/config"
)

// Position is an open long position owned by the engine. MaxPrice ratchets up
// every tick; TrailStop only ever rises once set. A zero TrailStop means the
// trailing stop has not armed yet.
type Position struct {
	Symbol      string    `json:"symbol"`
	EntryPrice  float64   `json:"entry_price"`
	TargetPrice float64   `json:"target_price"`
	Qty         int       `json:"qty"`
	OpenedAt    time.Time `json:"opened_at"`
	Bucket      string    `json:"bucket,omitempty"`
	MaxPrice    float64   `json:"max_price,omitempty"`
	TrailStop   float64   `json:"trail_stop,omitempty"`
}

// PendingOrder is a placed entry awaiting fill or expiry. Bucket is set only
// in cash mode, where its debit must be refunded if the order expires.
type PendingOrder struct {
	Symbol      string    `json:"symbol"`
	OrderID     string    `json:"order_id"`
	PlacedAt    time.Time `json:"placed_at"`
	Qty         int       `json:"qty"`
	EntryPrice  float64   `json:"entry_price"`
	TargetPrice float64   `json:"target_price"`
	Bucket      string    `json:"bucket,omitempty"`
}

// Status is the point-in-time snapshot served over the control API.
type Status struct {
	Running          bool           `json:"running"`
	Mode             string         `json:"mode"`
	DryRun           bool           `json:"dry_run"`
	DayStartEquity   float64        `json:"day_start_equity"`
	DailyRealizedUSD float64        `json:"daily_realized_usd"`
	SoftCapHit       bool           `json:"soft_cap_hit"`
	HardCapHit       bool           `json:"hard_cap_hit"`
	Positions        []Position     `json:"positions"`
	PendingOrders    []PendingOrder `json:"pending_orders"`
}

// Auditor receives one durable row per engine decision.
type Auditor interface {
	Log(event, symbol string, payload map[string]any)
}

// Publisher receives the operator narration lines. Implementations must not
// block; the engine fires and forgets.
type Publisher interface {
	Publish(line string)
}

// EarningsCalendar answers whether a symbol sits in its earnings lockout.
type EarningsCalendar interface {
	IsSkipDay(symbol string, day time.Time) bool
}

// Watchlist supplies the current symbol profile; the int is a version counter
// bumped on hot reload.
type Watchlist interface {
	Snapshot() (config.WatchlistProfile, int)
}
