package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

// ErrCycleInProgress is returned by RunCycle while another cycle is running
// in this process.
var ErrCycleInProgress = errors.New("cycle_in_progress")

// PriceOracle quotes tickers in exact dollars. forTransaction asks for a
// fresh quote suitable for settlement.
type PriceOracle interface {
	Price(ctx context.Context, ticker string, forTransaction bool) (decimal.Decimal, error)
}

// Notifier is told about orders that reached a terminal state. Calls happen
// after the state change is committed and must not block.
type Notifier interface {
	OrderCompleted(order *domain.Order, t *domain.Transaction)
	OrderFailed(order *domain.Order)
}

// SnapshotRecorder appends a portfolio value snapshot for a user.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, userID string) error
}

// Timeouts bound the external calls made for each order.
type Timeouts struct {
	Price time.Duration
	Store time.Duration
}

// CycleReport counts what happened to each pending order in one cycle.
type CycleReport struct {
	Evaluated int           `json:"evaluated"`
	Skipped   int           `json:"skipped"` // transient error or lost race, still pending or gone
	Held      int           `json:"held"`    // trigger not met
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeHeld
	outcomeCompleted
	outcomeFailed
)

// Matcher evaluates pending limit orders against live prices and settles
// the ones whose trigger condition holds.
type Matcher struct {
	store     store.Store
	oracle    PriceOracle
	settler   *Settler
	notifier  Notifier
	snapshots SnapshotRecorder
	timeouts  Timeouts
	logger    *slog.Logger
	running   atomic.Bool
}

// NewMatcher creates a Matcher. notifier and snapshots may be nil.
func NewMatcher(
	st store.Store,
	oracle PriceOracle,
	notifier Notifier,
	snapshots SnapshotRecorder,
	timeouts Timeouts,
	logger *slog.Logger,
) *Matcher {
	return &Matcher{
		store:     st,
		oracle:    oracle,
		settler:   NewSettler(st),
		notifier:  notifier,
		snapshots: snapshots,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// RunCycle evaluates every pending order once, oldest first. One order's
// failure never stops the others. The caller decides whether the market
// is open.
func (m *Matcher) RunCycle(ctx context.Context) (CycleReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleInProgress
	}
	defer m.running.Store(false)

	start := time.Now()
	var report CycleReport

	listCtx, cancel := m.storeContext(ctx)
	orders, err := m.store.ListPendingOrders(listCtx)
	cancel()
	if err != nil {
		return report, fmt.Errorf("%w: list pending orders: %v", domain.ErrStoreUnavailable, err)
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			break
		}
		report.Evaluated++
		switch m.evaluate(ctx, order) {
		case outcomeHeld:
			report.Held++
		case outcomeCompleted:
			report.Completed++
		case outcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	report.Duration = time.Since(start)
	m.logger.Info("matching cycle finished",
		slog.Int("evaluated", report.Evaluated),
		slog.Int("completed", report.Completed),
		slog.Int("failed", report.Failed),
		slog.Int("held", report.Held),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.Duration),
	)
	return report, ctx.Err()
}

func (m *Matcher) evaluate(ctx context.Context, order *domain.Order) (result outcome) {
	log := m.logger.With(
		slog.String("order_id", order.OrderID),
		slog.String("user_id", order.UserID),
		slog.String("ticker", order.Ticker),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic evaluating order", slog.Any("panic", r))
			result = outcomeSkipped
		}
	}()

	// Step 1: fresh price.
	priceCtx, cancel := m.priceContext(ctx)
	quote, err := m.oracle.Price(priceCtx, order.Ticker, true)
	cancel()
	if err != nil {
		log.Warn("price unavailable, order left pending", slog.String("error", err.Error()))
		return outcomeSkipped
	}

	// Step 2: trigger condition on the exact quote, then against the live
	// account at the cent price that will be charged.
	if !order.PriceTriggered(quote) {
		return outcomeHeld
	}
	price := order.FillPrice(quote)
	ok, err := m.sufficient(ctx, order, price)
	if err != nil {
		log.Warn("account read failed, order left pending", slog.String("error", err.Error()))
		return outcomeSkipped
	}
	if !ok {
		log.Debug("limit reached but account cannot cover the order", slog.Int64("price", price))
		return outcomeHeld
	}

	// Step 3: settle.
	settleCtx, cancel := m.storeContext(ctx)
	t, err := m.settler.Settle(settleCtx, order, price)
	cancel()
	switch {
	case err == nil:
		done := order.Clone()
		done.Status = domain.OrderStatusCompleted
		log.Info("order completed",
			slog.String("transaction_id", t.TransactionID),
			slog.Int64("price", t.Price),
			slog.Int64("total_amount", t.TotalAmount),
		)
		if m.notifier != nil {
			m.notifier.OrderCompleted(done, t)
		}
		m.recordSnapshot(ctx, order.UserID, log)
		return outcomeCompleted

	case errors.Is(err, domain.ErrPreconditionFailed):
		return m.fail(ctx, order, FailureReason(err), log)

	case errors.Is(err, domain.ErrOrderNotFound):
		log.Info("order cancelled before settlement")
		return outcomeSkipped

	case errors.Is(err, domain.ErrOrderNotPending):
		log.Warn("settlement refused for non-pending order", slog.String("error", err.Error()))
		return outcomeSkipped

	default:
		log.Warn("settlement failed, order left pending", slog.String("error", err.Error()))
		return outcomeSkipped
	}
}

// sufficient reports whether the account can cover the order at price.
func (m *Matcher) sufficient(ctx context.Context, order *domain.Order, price int64) (bool, error) {
	readCtx, cancel := m.storeContext(ctx)
	defer cancel()

	if order.Side == domain.OrderSideBuy {
		a, err := m.store.GetAccount(readCtx, order.UserID)
		if err != nil {
			return false, err
		}
		cost, err := order.Cost(price)
		if err != nil {
			// Settlement reports the overflow and fails the order.
			return true, nil
		}
		return a.CanAfford(cost), nil
	}
	h, err := m.store.GetHolding(readCtx, order.UserID, order.Ticker)
	if err != nil {
		return false, err
	}
	return h != nil && h.Quantity >= order.Quantity, nil
}

func (m *Matcher) fail(ctx context.Context, order *domain.Order, reason string, log *slog.Logger) outcome {
	failCtx, cancel := m.storeContext(ctx)
	err := m.settler.Fail(failCtx, order, reason)
	cancel()
	if err != nil {
		log.Warn("could not mark order failed", slog.String("reason", reason), slog.String("error", err.Error()))
		return outcomeSkipped
	}

	failed := order.Clone()
	failed.Status = domain.OrderStatusFailed
	failed.FailureReason = reason
	log.Info("order failed", slog.String("reason", reason))
	if m.notifier != nil {
		m.notifier.OrderFailed(failed)
	}
	return outcomeFailed
}

func (m *Matcher) recordSnapshot(ctx context.Context, userID string, log *slog.Logger) {
	if m.snapshots == nil {
		return
	}
	snapCtx, cancel := m.storeContext(ctx)
	defer cancel()
	if err := m.snapshots.RecordSnapshot(snapCtx, userID); err != nil {
		log.Warn("portfolio snapshot failed", slog.String("error", err.Error()))
	}
}

func (m *Matcher) priceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withOptionalTimeout(ctx, m.timeouts.Price)
}

func (m *Matcher) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withOptionalTimeout(ctx, m.timeouts.Store)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
