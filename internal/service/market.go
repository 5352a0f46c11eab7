package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/calendar"
	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
)

// MarketStatus describes the trading session at a point in time.
type MarketStatus struct {
	Open           bool
	TradingDay     bool
	Timezone       string
	Now            time.Time
	NextOpen       time.Time
	LastTradingDay time.Time
}

// Quote is a display price for a ticker.
type Quote struct {
	Ticker   string
	Price    int64           // cents
	Exact    decimal.Decimal // dollars, as quoted
	QuotedAt time.Time
}

// PriceHistory serves daily prices per ticker, oldest first.
type PriceHistory interface {
	Prices(ctx context.Context, ticker string, from, to time.Time) ([]*domain.PricePoint, error)
	Batch(ctx context.Context, tickers []string, from, to time.Time) (map[string][]*domain.PricePoint, error)
}

// Bounds on history queries.
const (
	MaxHistoryDays    = 366 * 5
	MaxHistoryTickers = 20
)

// MarketService answers market session, quote and price history queries.
type MarketService struct {
	calendar *calendar.Calendar
	oracle   engine.PriceOracle
	history  PriceHistory
}

// NewMarketService creates a new MarketService with the given dependencies.
// history may be nil, in which case history queries report
// ErrPriceUnavailable.
func NewMarketService(cal *calendar.Calendar, oracle engine.PriceOracle, history PriceHistory) *MarketService {
	return &MarketService{calendar: cal, oracle: oracle, history: history}
}

// Status reports whether the market is open at now and when it next opens.
func (s *MarketService) Status(now time.Time) *MarketStatus {
	loc := s.calendar.Location()
	st := &MarketStatus{
		Open:           s.calendar.IsMarketOpen(now),
		TradingDay:     s.calendar.IsTradingDay(now),
		Timezone:       loc.String(),
		Now:            now.In(loc),
		LastTradingDay: s.calendar.LastTradingDay(now),
	}
	if !st.Open {
		st.NextOpen = s.calendar.NextOpen(now)
	}
	return st
}

// Quote returns the cached display price of ticker. It never forces a
// realtime fetch.
func (s *MarketService) Quote(ctx context.Context, ticker string) (*Quote, error) {
	ticker = domain.NormalizeTicker(ticker)
	if !domain.ValidTicker(ticker) {
		return nil, &domain.ValidationError{Message: "ticker must match ^[A-Z]{1,10}$"}
	}
	price, err := s.oracle.Price(ctx, ticker, false)
	if err != nil {
		return nil, err
	}
	return &Quote{Ticker: ticker, Price: domain.DecimalToCents(price), Exact: price, QuotedAt: time.Now().UTC()}, nil
}

// History returns daily prices of ticker between from and to, inclusive.
func (s *MarketService) History(ctx context.Context, ticker string, from, to time.Time) ([]*domain.PricePoint, error) {
	ticker = domain.NormalizeTicker(ticker)
	if !domain.ValidTicker(ticker) {
		return nil, &domain.ValidationError{Message: "ticker must match ^[A-Z]{1,10}$"}
	}
	if err := s.checkRange(from, to); err != nil {
		return nil, err
	}
	return s.history.Prices(ctx, ticker, from, to)
}

// BatchHistory returns daily prices for several tickers at once. Duplicate
// tickers are collapsed.
func (s *MarketService) BatchHistory(ctx context.Context, tickers []string, from, to time.Time) (map[string][]*domain.PricePoint, error) {
	seen := make(map[string]bool, len(tickers))
	unique := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = domain.NormalizeTicker(t)
		if !domain.ValidTicker(t) {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid ticker %q", t)}
		}
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}
	if len(unique) == 0 {
		return nil, &domain.ValidationError{Message: "at least one ticker is required"}
	}
	if len(unique) > MaxHistoryTickers {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("at most %d tickers per request", MaxHistoryTickers)}
	}
	if err := s.checkRange(from, to); err != nil {
		return nil, err
	}
	return s.history.Batch(ctx, unique, from, to)
}

func (s *MarketService) checkRange(from, to time.Time) error {
	if s.history == nil {
		return fmt.Errorf("%w: no price history configured", domain.ErrPriceUnavailable)
	}
	if to.Before(from) {
		return &domain.ValidationError{Message: "from must not be after to"}
	}
	if to.Sub(from) > MaxHistoryDays*24*time.Hour {
		return &domain.ValidationError{Message: fmt.Sprintf("range must not exceed %d days", MaxHistoryDays)}
	}
	return nil
}
