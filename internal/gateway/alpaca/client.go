// Package alpaca is the REST brokerage gateway. Trading calls go to the
// paper or live trading host, market data to the data host, both behind a
// shared rate limiter and a circuit breaker. In dry-run mode order placement
// and cancellation are simulated locally.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"limitless/internal/config"
	"limitless/internal/gateway/broker"
	"limitless/internal/logger"
	"limitless/internal/market"
	"limitless/internal/pkg/circuit"
)

const (
	defaultBaseURL     = "https://paper-api.alpaca.markets"
	defaultDataBaseURL = "https://data.alpaca.markets"
)

type Client struct {
	baseURL     string
	dataBaseURL string
	keyID       string
	secretKey   string
	feed        string
	dryRun      bool
	paperEquity float64

	http    *http.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
}

var _ broker.Broker = (*Client)(nil)

// New builds a client from the broker configuration. paperEquity is the
// synthetic account equity reported when running dry without credentials.
func New(cfg config.BrokerConfig, paperEquity float64) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	dataBase := strings.TrimRight(cfg.DataBaseURL, "/")
	if dataBase == "" {
		dataBase = defaultDataBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 3
	}
	return &Client{
		baseURL:     base,
		dataBaseURL: dataBase,
		keyID:       strings.TrimSpace(cfg.KeyID),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		feed:        selectFeed(cfg.DataFeed, base),
		dryRun:      cfg.DryRun,
		paperEquity: paperEquity,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), rps),
		breaker:     circuit.NewBreaker("alpaca", 5, 30*time.Second),
	}
}

// selectFeed picks iex for paper hosts and sip for live ones unless the
// configuration forces a feed.
func selectFeed(configured, base string) string {
	if f := strings.ToLower(strings.TrimSpace(configured)); f != "" {
		return f
	}
	if strings.Contains(base, "paper-api") {
		return "iex"
	}
	return "sip"
}

func (c *Client) hasCredentials() bool {
	return c.keyID != "" && c.secretKey != ""
}

// do runs one authenticated request under the limiter and breaker. The
// response body is returned for 2xx statuses only.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	if !c.hasCredentials() {
		return nil, fmt.Errorf("alpaca credentials not set")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out []byte
	err := c.breaker.Do(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return err
		}
		req.Header.Set("APCA-API-KEY-ID", c.keyID)
		req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if resp.StatusCode == http.StatusUnauthorized {
				logger.Errorf("alpaca: 401 unauthorized on %s %s", method, rawURL)
			}
			return fmt.Errorf("alpaca %s %s: status %d: %s", method, rawURL, resp.StatusCode, truncate(data, 200))
		}
		out = data
		return nil
	})
	return out, err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	if c.dryRun && !c.hasCredentials() {
		return broker.Account{Equity: c.paperEquity, BuyingPower: c.paperEquity}, nil
	}
	data, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/account", nil)
	if err != nil {
		return broker.Account{}, err
	}
	return broker.Account{
		Equity:      gjson.GetBytes(data, "equity").Float(),
		BuyingPower: gjson.GetBytes(data, "buying_power").Float(),
	}, nil
}

func (c *Client) GetBars(ctx context.Context, symbol string, limit int) ([]market.Bar, error) {
	q := url.Values{}
	q.Set("timeframe", "1Min")
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("adjustment", "raw")
	q.Set("feed", c.feed)
	u := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.dataBaseURL, url.PathEscape(symbol), q.Encode())

	data, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Bars []market.Bar `json:"bars"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", symbol, err)
	}
	return payload.Bars, nil
}

func (c *Client) LatestTradePrice(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/v2/stocks/%s/trades/latest?feed=%s", c.dataBaseURL, url.PathEscape(symbol), c.feed)
	data, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	p := gjson.GetBytes(data, "trade.p")
	if !p.Exists() {
		return 0, broker.ErrNoTrade
	}
	return p.Float(), nil
}

// PlaceBracketOrder submits a day bracket order: a stop-limit or limit buy
// entry paired with a take-profit limit. No stop-loss leg; exits are managed
// by the engine.
func (c *Client) PlaceBracketOrder(ctx context.Context, symbol string, qty int, entry broker.EntrySpec, targetPrice float64) (string, error) {
	payload := map[string]any{
		"symbol":        symbol,
		"side":          "buy",
		"time_in_force": "day",
		"qty":           fmt.Sprintf("%d", qty),
		"order_class":   "bracket",
		"take_profit":   map[string]string{"limit_price": fmt.Sprintf("%.2f", targetPrice)},
	}
	if entry.StopPrice > 0 {
		payload["type"] = "stop_limit"
		payload["stop_price"] = fmt.Sprintf("%.2f", entry.StopPrice)
		payload["limit_price"] = fmt.Sprintf("%.2f", entry.StopPrice)
	} else {
		payload["type"] = "limit"
		payload["limit_price"] = fmt.Sprintf("%.2f", entry.LimitPrice)
	}

	if c.dryRun {
		id := "paper-" + uuid.NewString()
		logger.Infof("alpaca: dry-run order %s %s qty=%d target=%.2f", id, symbol, qty, targetPrice)
		return id, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	data, err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", body)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(data, "id").String()
	if id == "" {
		return "", fmt.Errorf("alpaca order %s: response missing id", symbol)
	}
	return id, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		return nil
	}
	_, err := c.do(ctx, http.MethodDelete, c.baseURL+"/v2/orders/"+url.PathEscape(orderID), nil)
	return err
}

func (c *Client) GetPositions(ctx context.Context) ([]broker.Position, error) {
	data, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/positions", nil)
	if err != nil {
		return nil, err
	}
	var out []broker.Position
	for _, item := range gjson.ParseBytes(data).Array() {
		out = append(out, broker.Position{
			Symbol: item.Get("symbol").String(),
			Qty:    item.Get("qty").Float(),
		})
	}
	return out, nil
}
