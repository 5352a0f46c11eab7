package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/shopspring/decimal"
)

// Position is one holding priced at the current market.
type Position struct {
	Ticker        string
	Quantity      int64
	AveragePrice  decimal.Decimal // cents
	Price         int64           // cents
	MarketValue   int64           // cents
	CostBasis     int64           // cents
	UnrealizedPnL int64           // cents
	Stale         bool            // no quote available, priced at the average
}

// Valuation is an account's value at a point in time.
type Valuation struct {
	UserID        string
	CashBalance   int64
	InvestedValue int64
	TotalValue    int64
	Positions     []Position
	ValuedAt      time.Time
}

// Snapshot converts the valuation to a history entry.
func (v *Valuation) Snapshot() *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		UserID:        v.UserID,
		CashBalance:   v.CashBalance,
		InvestedValue: v.InvestedValue,
		TotalValue:    v.TotalValue,
		TakenAt:       v.ValuedAt,
	}
}

// PortfolioService values accounts and keeps their value history.
type PortfolioService struct {
	store  store.Store
	oracle engine.PriceOracle
	logger *slog.Logger
}

// NewPortfolioService creates a PortfolioService. Prices come from the
// oracle's cached path, never the transaction path.
func NewPortfolioService(st store.Store, oracle engine.PriceOracle, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{store: st, oracle: oracle, logger: logger}
}

// Value prices every holding of userID. A ticker whose price cannot be
// fetched is valued at its average price and flagged stale; the valuation
// itself only fails when the account cannot be read.
func (s *PortfolioService) Value(ctx context.Context, userID string) (*Valuation, error) {
	a, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &Valuation{
		UserID:      userID,
		CashBalance: a.CashBalance,
		Positions:   make([]Position, 0, len(holdings)),
		ValuedAt:    time.Now().UTC(),
	}
	for _, h := range holdings {
		qty := decimal.NewFromInt(h.Quantity)
		p := Position{
			Ticker:       h.Ticker,
			Quantity:     h.Quantity,
			AveragePrice: h.AveragePrice,
			CostBasis:    h.AveragePrice.Mul(qty).Round(0).IntPart(),
		}

		quote, err := s.oracle.Price(ctx, h.Ticker, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("pricing holding at average",
				slog.String("user_id", userID),
				slog.String("ticker", h.Ticker),
				slog.String("error", err.Error()),
			)
			p.Stale = true
			p.Price = h.AveragePrice.Round(0).IntPart()
			p.MarketValue = p.CostBasis
		} else {
			p.Price = domain.DecimalToCents(quote)
			p.MarketValue = h.Quantity * p.Price
		}
		p.UnrealizedPnL = p.MarketValue - p.CostBasis

		v.InvestedValue += p.MarketValue
		v.Positions = append(v.Positions, p)
	}
	v.TotalValue = v.CashBalance + v.InvestedValue
	return v, nil
}

// Snapshot values the account and appends the result to its history.
func (s *PortfolioService) Snapshot(ctx context.Context, userID string) (*domain.PortfolioSnapshot, error) {
	v, err := s.Value(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := v.Snapshot()
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RecordSnapshot is called by the matcher after each settlement.
func (s *PortfolioService) RecordSnapshot(ctx context.Context, userID string) error {
	_, err := s.Snapshot(ctx, userID)
	return err
}

// History returns the user's snapshots, oldest first.
func (s *PortfolioService) History(ctx context.Context, userID string) ([]*domain.PortfolioSnapshot, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, userID)
}

// annualizeAfter is how long an account must have traded before its
// return is annualized.
const annualizeAfter = 7 * 24 * time.Hour

// Performance summarizes how an account has done. Percentages are plain
// percent values (12.5 means 12.5%).
type Performance struct {
	UserID       string
	TotalValue   int64 // cents
	StartingCash int64 // cents

	// DailyChange compares TotalValue with the last snapshot of the
	// previous UTC day. Both are nil when there is no such snapshot.
	DailyChange        *int64
	DailyChangePercent *float64

	TotalReturn        int64 // cents
	TotalReturnPercent float64

	// AnnualizedReturnPercent is nil until the first trade is more than a
	// week old.
	AnnualizedReturnPercent *float64
	FirstTradeAt            *time.Time
	AsOf                    time.Time
}

// Performance reports daily change, total return and annualized return for
// userID at now. The current value is the latest snapshot, or a live
// valuation when no snapshot exists yet.
func (s *PortfolioService) Performance(ctx context.Context, userID string, now time.Time) (*Performance, error) {
	a, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.ListSnapshots(ctx, userID)
	if err != nil {
		return nil, err
	}

	perf := &Performance{UserID: userID, StartingCash: a.StartingCash, AsOf: now.UTC()}
	if len(snaps) > 0 {
		perf.TotalValue = snaps[len(snaps)-1].TotalValue
	} else {
		v, err := s.Value(ctx, userID)
		if err != nil {
			return nil, err
		}
		perf.TotalValue = v.TotalValue
	}

	if prev := previousDay(snaps, now); prev != nil {
		change := perf.TotalValue - prev.TotalValue
		perf.DailyChange = &change
		if prev.TotalValue != 0 {
			pct := float64(change) / float64(prev.TotalValue) * 100
			perf.DailyChangePercent = &pct
		}
	}

	perf.TotalReturn = perf.TotalValue - a.StartingCash
	if a.StartingCash > 0 {
		perf.TotalReturnPercent = float64(perf.TotalReturn) / float64(a.StartingCash) * 100
	}

	ledger, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ledger) > 0 {
		first := ledger[len(ledger)-1].ExecutedAt // newest first
		perf.FirstTradeAt = &first
		if elapsed := now.Sub(first); elapsed > annualizeAfter {
			days := elapsed.Hours() / 24
			r := perf.TotalReturnPercent / 100
			annual := (math.Pow(1+r, 365/days) - 1) * 100
			perf.AnnualizedReturnPercent = &annual
		}
	}
	return perf, nil
}

// previousDay returns the last snapshot taken on the UTC day before now.
// snaps is oldest first.
func previousDay(snaps []*domain.PortfolioSnapshot, now time.Time) *domain.PortfolioSnapshot {
	today := domain.PriceDate(now)
	yesterday := today.AddDate(0, 0, -1)
	for i := len(snaps) - 1; i >= 0; i-- {
		t := snaps[i].TakenAt
		if !t.Before(today) {
			continue
		}
		if t.Before(yesterday) {
			return nil
		}
		return snaps[i]
	}
	return nil
}

var _ engine.SnapshotRecorder = (*PortfolioService)(nil)
