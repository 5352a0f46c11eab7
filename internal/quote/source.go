// Package quote fetches stock prices for order matching and portfolio
// valuation.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Source returns the latest price of a ticker in dollars, exactly as
// quoted. Rounding to cents is left to the caller.
type Source interface {
	Fetch(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// HTTPSource reads prices from a JSON endpoint at {baseURL}/{ticker} that
// answers {"price": "189.42"}. The price may also be a JSON number.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource creates an HTTPSource. timeout bounds each request.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type quoteResponse struct {
	Price json.Number `json:"price"`
}

func (s *HTTPSource) Fetch(ctx context.Context, ticker string) (decimal.Decimal, error) {
	apiURL := fmt.Sprintf("%s/%s", s.baseURL, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("%w: %s: status %d: %s", domain.ErrPriceUnavailable, ticker, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var qr quoteResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&qr); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: decode response: %v", domain.ErrPriceUnavailable, ticker, err)
	}
	return parsePrice(ticker, qr.Price.String())
}

// parsePrice parses a decimal dollar string, rejecting missing, zero and
// negative prices. Sub-cent precision is kept.
func parsePrice(ticker, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s: missing price", domain.ErrInvalidPrice, ticker)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %q", domain.ErrInvalidPrice, ticker, raw)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s: %s", domain.ErrInvalidPrice, ticker, d.String())
	}
	return d, nil
}

// StaticSource serves prices from memory. It backs local runs without a
// quote provider and tests.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticSource creates a StaticSource from prices in cents.
func NewStaticSource(prices map[string]int64) *StaticSource {
	s := &StaticSource{prices: make(map[string]decimal.Decimal, len(prices))}
	for t, p := range prices {
		s.prices[t] = domain.CentsToDecimal(p)
	}
	return s
}

// Set replaces the price of ticker with a whole number of cents.
func (s *StaticSource) Set(ticker string, cents int64) {
	s.SetQuote(ticker, domain.CentsToDecimal(cents))
}

// SetQuote replaces the price of ticker with an exact dollar amount.
func (s *StaticSource) SetQuote(ticker string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[ticker] = price
}

func (s *StaticSource) Fetch(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, ticker)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, ticker)
	}
	return p, nil
}
