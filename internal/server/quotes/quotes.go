// Package quotes fetches market quotes from a Financial Modeling Prep style
// JSON API. It does no valuation math.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 10 * time.Second

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("quote api not configured")

// ErrUnknownTicker is returned when the API has no data for the symbol.
var ErrUnknownTicker = errors.New("unknown ticker")

// Quote is a best-effort snapshot. Missing fields are left nil and noted in
// Errors; a partial quote is still a successful result.
type Quote struct {
	Ticker        string   `json:"ticker"`
	Name          string   `json:"name,omitempty"`
	Price         *float64 `json:"price"`
	ChangePercent *float64 `json:"changePercent"`
	PE            *float64 `json:"pe"`
	MarketCap     *float64 `json:"marketCap"`
	FetchedAt     string   `json:"fetchedAt"`
	Errors        []string `json:"errors,omitempty"`
}

type apiQuote struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Price             *float64 `json:"price"`
	ChangesPercentage *float64 `json:"changesPercentage"`
	PE                *float64 `json:"pe"`
	MarketCap         *float64 `json:"marketCap"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		now:     time.Now,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) Get(ctx context.Context, ticker string) (*Quote, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrUnknownTicker
	}

	endpoint := fmt.Sprintf("%s/quote/%s?apikey=%s", c.baseURL, url.PathEscape(ticker), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("quote api status %d", resp.StatusCode)
	}

	var items []apiQuote
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrUnknownTicker
	}

	it := items[0]
	q := &Quote{
		Ticker:        ticker,
		Name:          it.Name,
		Price:         it.Price,
		ChangePercent: it.ChangesPercentage,
		PE:            it.PE,
		MarketCap:     it.MarketCap,
		FetchedAt:     c.now().UTC().Format(time.RFC3339),
	}
	if q.Price == nil {
		q.Errors = append(q.Errors, "price unavailable")
	}
	if q.PE == nil {
		q.Errors = append(q.Errors, "pe unavailable")
	}
	if q.MarketCap == nil {
		q.Errors = append(q.Errors, "market cap unavailable")
	}
	return q, nil
}
