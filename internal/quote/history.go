package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

const dateLayout = "2006-01-02"

// Close is a daily closing price.
type Close struct {
	Date  time.Time
	Price decimal.Decimal // dollars
}

// HistorySource returns daily closes for a ticker between two dates,
// inclusive.
type HistorySource interface {
	Closes(ctx context.Context, ticker string, from, to time.Time) ([]Close, error)
}

// TradingCalendar reports which dates the market trades on.
type TradingCalendar interface {
	IsTradingDay(t time.Time) bool
}

// HTTPHistorySource reads closes from {baseURL}/{ticker}?from=&to= which
// answers {"historical": [{"date": "2026-03-02", "close": "48.10"}]}.
type HTTPHistorySource struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPHistorySource(baseURL string, timeout time.Duration) *HTTPHistorySource {
	return &HTTPHistorySource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type historyResponse struct {
	Historical []struct {
		Date  string      `json:"date"`
		Close json.Number `json:"close"`
	} `json:"historical"`
}

func (s *HTTPHistorySource) Closes(ctx context.Context, ticker string, from, to time.Time) ([]Close, error) {
	q := url.Values{}
	q.Set("from", from.Format(dateLayout))
	q.Set("to", to.Format(dateLayout))
	apiURL := fmt.Sprintf("%s/%s?%s", s.baseURL, url.PathEscape(ticker), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s history: %v", domain.ErrPriceUnavailable, ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s history: status %d: %s", domain.ErrPriceUnavailable, ticker, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var hr historyResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&hr); err != nil {
		return nil, fmt.Errorf("%w: %s history: decode response: %v", domain.ErrPriceUnavailable, ticker, err)
	}

	closes := make([]Close, 0, len(hr.Historical))
	for _, h := range hr.Historical {
		date, err := time.Parse(dateLayout, h.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %s history: date %q", domain.ErrInvalidPrice, ticker, h.Date)
		}
		price, err := parsePrice(ticker, h.Close.String())
		if err != nil {
			return nil, err
		}
		closes = append(closes, Close{Date: date, Price: price})
	}
	sort.Slice(closes, func(i, j int) bool { return closes[i].Date.Before(closes[j].Date) })
	return closes, nil
}

// History serves daily prices from the archive and fills gaps from a
// HistorySource. Every price the oracle fetches is archived through it too.
type History struct {
	archive  store.PriceArchive
	source   HistorySource
	calendar TradingCalendar
	logger   *slog.Logger
}

// NewHistory creates a History. source and calendar may be nil; without a
// source only archived prices are served, and without a calendar every
// weekday counts as a trading day.
func NewHistory(archive store.PriceArchive, source HistorySource, calendar TradingCalendar, logger *slog.Logger) *History {
	return &History{archive: archive, source: source, calendar: calendar, logger: logger}
}

// Record archives a quote under its UTC date. The first quote of a date
// wins; later ones are dropped.
func (h *History) Record(ctx context.Context, ticker string, price decimal.Decimal, source string, isTransaction bool, at time.Time) {
	_, err := h.archive.PutPrice(ctx, &domain.PricePoint{
		Ticker:        ticker,
		Date:          domain.PriceDate(at),
		Price:         price,
		Source:        source,
		IsTransaction: isTransaction,
		CreatedAt:     at,
	})
	if err != nil {
		h.logger.Warn("price archive write failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
	}
}

// Prices returns daily prices for ticker between from and to, oldest
// first. The archive answers when it covers at least 90% of the trading
// days in the range; otherwise the closes are fetched and archived.
func (h *History) Prices(ctx context.Context, ticker string, from, to time.Time) ([]*domain.PricePoint, error) {
	from, to = domain.PriceDate(from), domain.PriceDate(to)
	if to.Before(from) {
		return nil, &domain.ValidationError{Message: "from must not be after to"}
	}

	cached, err := h.archive.ListPrices(ctx, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: list prices: %v", domain.ErrStoreUnavailable, err)
	}
	if h.source == nil || len(cached)*10 >= h.tradingDays(from, to)*9 {
		return cached, nil
	}

	closes, err := h.source.Closes(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	points := make([]*domain.PricePoint, 0, len(closes))
	for _, c := range closes {
		p := &domain.PricePoint{
			Ticker:    ticker,
			Date:      domain.PriceDate(c.Date),
			Price:     c.Price,
			Source:    "history",
			CreatedAt: now,
		}
		if _, err := h.archive.PutPrice(ctx, p); err != nil {
			h.logger.Warn("price archive write failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
		points = append(points, p)
	}
	return points, nil
}

// Batch runs Prices for several tickers concurrently.
func (h *History) Batch(ctx context.Context, tickers []string, from, to time.Time) (map[string][]*domain.PricePoint, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	result := make(map[string][]*domain.PricePoint, len(tickers))
	for _, ticker := range tickers {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			points, err := h.Prices(ctx, ticker, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
				return
			}
			result[ticker] = points
		}(ticker)
	}
	wg.Wait()
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// lastCloseWindow is how far back LastClose looks for a trading day.
const lastCloseWindow = 7 * 24 * time.Hour

// LastClose returns the most recent daily price at or before now.
func (h *History) LastClose(ctx context.Context, ticker string, now time.Time) (decimal.Decimal, error) {
	points, err := h.Prices(ctx, ticker, now.Add(-lastCloseWindow), now)
	if err == nil && len(points) > 0 {
		return points[len(points)-1].Price, nil
	}
	latest, aerr := h.archive.LatestPrice(ctx, ticker)
	if aerr == nil && latest != nil {
		return latest.Price, nil
	}
	if err == nil {
		err = aerr
	}
	if err == nil {
		err = fmt.Errorf("%w: %s: no historical price", domain.ErrPriceUnavailable, ticker)
	}
	return decimal.Zero, err
}

func (h *History) tradingDays(from, to time.Time) int {
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if h.calendar != nil {
			// Noon UTC falls on the same date in any market zone.
			if h.calendar.IsTradingDay(d.Add(12 * time.Hour)) {
				n++
			}
			continue
		}
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}
