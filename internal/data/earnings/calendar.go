// Package earnings maintains the per-symbol earnings lockout calendar from
// the Finnhub earnings endpoint. Symbols are not traded on a report date,
// and optionally the session after.
package earnings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"limitless/internal/logger"
	"limitless/internal/pkg/timeutil"
)

const endpoint = "https://finnhub.io/api/v1/calendar/earnings"

type Calendar struct {
	apiKey      string
	skipNextDay bool
	baseURL     string
	client      *http.Client

	mu        sync.RWMutex
	skipDates map[string]map[string]struct{} // symbol -> ISO dates
}

func NewCalendar(apiKey string, skipNextDay bool) *Calendar {
	return &Calendar{
		apiKey:      apiKey,
		skipNextDay: skipNextDay,
		baseURL:     endpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
		skipDates:   make(map[string]map[string]struct{}),
	}
}

// RefreshSymbol refetches the lockout dates for one symbol. A missing API key
// or a fetch failure leaves the previous dates in place.
func (c *Calendar) RefreshSymbol(ctx context.Context, symbol string) error {
	if c.apiKey == "" {
		logger.Warnf("earnings: finnhub api key not configured, skipping refresh for %s", symbol)
		return nil
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Errorf("earnings: fetch calendar for %s: %v", symbol, err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Errorf("earnings: fetch calendar for %s: status %d", symbol, resp.StatusCode)
		return fmt.Errorf("finnhub status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	c.ingest(symbol, body)
	return nil
}

func (c *Calendar) ingest(symbol string, body []byte) {
	days := make(map[string]struct{})
	for _, item := range gjson.GetBytes(body, "earningsCalendar").Array() {
		date := item.Get("date").String()
		if date == "" {
			continue
		}
		days[date] = struct{}{}
		if c.skipNextDay {
			if d, err := time.ParseInLocation("2006-01-02", date, timeutil.Eastern()); err == nil {
				days[d.AddDate(0, 0, 1).Format("2006-01-02")] = struct{}{}
			}
		}
	}

	c.mu.Lock()
	c.skipDates[symbol] = days
	c.mu.Unlock()
}

// IsSkipDay reports whether day falls in the symbol's lockout set.
func (c *Calendar) IsSkipDay(symbol string, day time.Time) bool {
	iso := day.In(timeutil.Eastern()).Format("2006-01-02")
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.skipDates[symbol][iso]
	return ok
}
