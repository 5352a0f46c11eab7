package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/shopspring/decimal"
)

const testStartingCash = 10000000 // $100,000.00

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openAccount(t *testing.T, st store.Store, userID string, cash int64) {
	t.Helper()
	now := time.Now().UTC()
	err := st.CreateAccount(context.Background(), &domain.Account{
		UserID:       userID,
		CashBalance:  cash,
		StartingCash: cash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("failed to create account %s: %v", userID, err)
	}
}

func putHolding(t *testing.T, st store.Store, userID, ticker string, qty, avg int64) {
	t.Helper()
	err := st.WithAccount(context.Background(), userID, func(tx store.AccountTx) error {
		return tx.PutHolding(&domain.Holding{
			UserID:       userID,
			Ticker:       ticker,
			Quantity:     qty,
			AveragePrice: decimal.NewFromInt(avg),
		})
	})
	if err != nil {
		t.Fatalf("failed to put holding %s/%s: %v", userID, ticker, err)
	}
}

// stubOracle serves fixed prices and records which path was asked.
type stubOracle struct {
	mu             sync.Mutex
	prices         map[string]int64
	errs           map[string]error
	forTransaction []bool
}

func newStubOracle(prices map[string]int64) *stubOracle {
	return &stubOracle{prices: prices, errs: make(map[string]error)}
}

func (o *stubOracle) Price(_ context.Context, ticker string, forTransaction bool) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forTransaction = append(o.forTransaction, forTransaction)
	if err, ok := o.errs[ticker]; ok {
		return decimal.Zero, err
	}
	p, ok := o.prices[ticker]
	if !ok {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	return domain.CentsToDecimal(p), nil
}

// recordingListener captures lifecycle notifications.
type recordingListener struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	cancelled []string
}

func (l *recordingListener) OrderCompleted(o *domain.Order, _ *domain.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, o.OrderID)
}

func (l *recordingListener) OrderFailed(o *domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, o.OrderID)
}

func (l *recordingListener) OrderCancelled(o *domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled = append(l.cancelled, o.OrderID)
}
