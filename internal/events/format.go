// Package events carries the operator narration stream: every engine decision
// becomes one plain-English line pushed through a bounded hub to whoever is
// listening (websocket clients, Telegram).
package events

import (
	"fmt"
	"sort"
	"strings"
)

// Exit reasons recorded on position close.
const (
	ReasonTargetHit     = "target_hit"
	ReasonMAECut        = "mae_cut"
	ReasonATRTrailStop  = "atr_trail_stop"
	ReasonFridayFlatten = "friday_flatten"
)

var closeReasonText = map[string]string{
	ReasonTargetHit:     "Took profit",
	ReasonMAECut:        "Cut loss early, price fell too far",
	ReasonATRTrailStop:  "Trailing stop hit, locking gains",
	ReasonFridayFlatten: "Friday close, flattening before weekend",
}

func detailSuffix(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := details[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.4f", k, v))
		case float32:
			parts = append(parts, fmt.Sprintf("%s=%.4f", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// Skip narrates a rejected entry attempt.
func Skip(symbol, reason string, details map[string]any) string {
	return fmt.Sprintf("%s: Skipped: %s%s", symbol, reason, detailSuffix(details))
}

// Info narrates a neutral state change.
func Info(symbol, note string, details map[string]any) string {
	return fmt.Sprintf("%s: %s%s", symbol, note, detailSuffix(details))
}

// Entry narrates a placed entry order.
func Entry(symbol string, qty int, entry, target float64, mode string) string {
	return fmt.Sprintf("%s: Placed entry: qty=%d, entry=%.2f, target=%.2f, mode=%s",
		symbol, qty, entry, target, mode)
}

// Open narrates a confirmed fill.
func Open(symbol string, qty int, entry, target float64) string {
	return fmt.Sprintf("%s: Position opened: bought %d at %.2f, target %.2f",
		symbol, qty, entry, target)
}

// Close narrates an exit with its realized P&L, translating the internal
// reason code to operator language.
func Close(symbol string, price, realized float64, reason string) string {
	human, ok := closeReasonText[reason]
	if !ok {
		human = reason
	}
	pnl := fmt.Sprintf("%.2f", realized)
	if realized >= 0 {
		pnl = "+" + pnl
	}
	return fmt.Sprintf("%s: %s: sold at %.2f, P&L %s", symbol, human, price, pnl)
}
