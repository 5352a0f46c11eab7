package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

const testCommission = 1999

var testEpoch = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// tb is the part of testing.TB that *rapid.T also provides.
type tb interface {
	Helper()
	Fatalf(format string, args ...any)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOracle serves fixed prices. Tickers in quotes are served with
// sub-cent precision; tickers in errs fail; tickers in block wait for ctx
// to end.
type fakeOracle struct {
	mu     sync.Mutex
	prices map[string]int64
	quotes map[string]decimal.Decimal
	errs   map[string]error
	block  map[string]bool
	calls  []string
	onCall func(ticker string)
}

func newFakeOracle(prices map[string]int64) *fakeOracle {
	return &fakeOracle{
		prices: prices,
		quotes: map[string]decimal.Decimal{},
		errs:   map[string]error{},
		block:  map[string]bool{},
	}
}

func (f *fakeOracle) SetQuote(ticker, dollars string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[ticker] = decimal.RequireFromString(dollars)
}

func (f *fakeOracle) Set(ticker string, cents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[ticker] = cents
}

func (f *fakeOracle) Price(ctx context.Context, ticker string, forTransaction bool) (decimal.Decimal, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ticker)
	onCall := f.onCall
	p, ok := f.prices[ticker]
	q, exact := f.quotes[ticker]
	err := f.errs[ticker]
	block := f.block[ticker]
	f.mu.Unlock()

	if !forTransaction {
		return decimal.Zero, fmt.Errorf("matcher must ask for transaction prices")
	}
	if onCall != nil {
		onCall(ticker)
	}
	if block {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	if err != nil {
		return decimal.Zero, err
	}
	if exact {
		return q, nil
	}
	if !ok {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	return domain.CentsToDecimal(p), nil
}

// recordingNotifier collects terminal order events.
type recordingNotifier struct {
	mu        sync.Mutex
	completed []*domain.Order
	failed    []*domain.Order
}

func (r *recordingNotifier) OrderCompleted(o *domain.Order, _ *domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, o)
}

func (r *recordingNotifier) OrderFailed(o *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, o)
}

type recordingSnapshots struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (r *recordingSnapshots) RecordSnapshot(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return r.err
}

func newAccount(t tb, st store.Store, userID string, cash int64) {
	t.Helper()
	err := st.CreateAccount(context.Background(), &domain.Account{
		UserID: userID, CashBalance: cash, StartingCash: cash, CreatedAt: testEpoch, UpdatedAt: testEpoch,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
}

func giveShares(t tb, st store.Store, userID, ticker string, qty, avg int64) {
	t.Helper()
	err := st.WithAccount(context.Background(), userID, func(tx store.AccountTx) error {
		return tx.PutHolding(&domain.Holding{
			UserID: userID, Ticker: ticker, Quantity: qty, AveragePrice: decimal.NewFromInt(avg),
		})
	})
	if err != nil {
		t.Fatalf("PutHolding: %v", err)
	}
}

var orderSeq int

func placeOrder(t tb, st store.Store, userID, ticker string, side domain.OrderSide, qty, limit int64) *domain.Order {
	t.Helper()
	orderSeq++
	at := testEpoch.Add(time.Duration(orderSeq) * time.Millisecond)
	o := &domain.Order{
		OrderID:    fmt.Sprintf("ord-%06d", orderSeq),
		UserID:     userID,
		Ticker:     ticker,
		Side:       side,
		Quantity:   qty,
		LimitPrice: limit,
		Commission: testCommission,
		Status:     domain.OrderStatusPending,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := st.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

func cashOf(t tb, st store.Store, userID string) int64 {
	t.Helper()
	a, err := st.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return a.CashBalance
}

func statusOf(t tb, st store.Store, orderID string) domain.OrderStatus {
	t.Helper()
	o, err := st.GetOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("GetOrder(%s): %v", orderID, err)
	}
	return o.Status
}

func ledgerOf(t tb, st store.Store, userID string) []*domain.Transaction {
	t.Helper()
	l, err := st.ListTransactions(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	return l
}

// faultyStore fails every write made inside WithAccount once armed.
type faultyStore struct {
	store.Store
	failWrites bool
}

func (f *faultyStore) WithAccount(ctx context.Context, userID string, fn func(tx store.AccountTx) error) error {
	return f.Store.WithAccount(ctx, userID, func(tx store.AccountTx) error {
		if f.failWrites {
			return fn(&faultyTx{AccountTx: tx})
		}
		return fn(tx)
	})
}

var errDiskFull = fmt.Errorf("disk full")

type faultyTx struct {
	store.AccountTx
}

func (f *faultyTx) InsertTransaction(*domain.Transaction) error { return errDiskFull }

// staleStore reports a fixed, stale cash balance on GetAccount and can run
// a hook after each read to simulate concurrent activity.
type staleStore struct {
	store.Store
	cash      int64
	afterRead func()
}

func (s *staleStore) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	a, err := s.Store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	a.CashBalance = s.cash
	if s.afterRead != nil {
		s.afterRead()
	}
	return a, nil
}

// backends names the store implementations the concurrency tests run on.
var backends = []string{"memory", "sqlite"}

var dbSeq atomic.Int64

// openBackend returns fresh stores of the named kind that all see the same
// data. For sqlite it opens two handles on one database file, so racing
// settlements contend on the database lock and not only on the in-process
// account lock.
func openBackend(t tb, kind, dir string) ([]store.Store, func()) {
	t.Helper()
	if kind == "memory" {
		return []store.Store{store.NewMemoryStore()}, func() {}
	}

	path := filepath.Join(dir, fmt.Sprintf("engine-%d.db", dbSeq.Add(1)))
	var handles []*store.SQLiteStore
	closeAll := func() {
		for _, h := range handles {
			h.Close()
		}
	}
	stores := make([]store.Store, 0, 2)
	for i := 0; i < 2; i++ {
		h, err := store.NewSQLiteStore(path)
		if err != nil {
			closeAll()
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		handles = append(handles, h)
		stores = append(stores, h)
	}
	return stores, closeAll
}
