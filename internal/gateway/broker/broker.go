// Package broker defines the brokerage contract the engine trades through.
// The engine never talks to a REST client directly; it sees this interface
// and the small value types it exchanges.
package broker

import (
	"context"
	"errors"

	"limitless/internal/market"
)

// ErrNoTrade is returned by LatestTradePrice when the venue has no trade to
// report for the symbol. Callers treat it as "skip this tick", not a failure.
var ErrNoTrade = errors.New("no trade available")

// Account is the equity snapshot used for mode derivation and sizing.
type Account struct {
	Equity      float64
	BuyingPower float64
}

// EntrySpec carries the entry leg of a bracket order. Exactly one of
// StopPrice or LimitPrice is set, matching the configured entry order type.
type EntrySpec struct {
	StopPrice  float64
	LimitPrice float64
}

// Position is the broker-side view of an open position, used only to confirm
// fills in live mode.
type Position struct {
	Symbol string
	Qty    float64
}

// Broker is the synchronous brokerage surface the engine depends on. Every
// call is blocking from the engine's perspective and honors ctx cancellation.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetBars(ctx context.Context, symbol string, limit int) ([]market.Bar, error)
	LatestTradePrice(ctx context.Context, symbol string) (float64, error)

	// PlaceBracketOrder submits a buy entry paired with a take-profit limit
	// at targetPrice and returns the broker order id.
	PlaceBracketOrder(ctx context.Context, symbol string, qty int, entry EntrySpec, targetPrice float64) (string, error)

	// CancelOrder is idempotent; cancelling an unknown or already-filled
	// order is not an error the caller needs to act on.
	CancelOrder(ctx context.Context, orderID string) error

	GetPositions(ctx context.Context) ([]Position, error)
}
