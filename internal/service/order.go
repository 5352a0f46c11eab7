package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/google/uuid"
)

// PlaceOrderRequest represents the input for order entry.
type PlaceOrderRequest struct {
	UserID     string
	Ticker     string
	Side       domain.OrderSide
	Quantity   int64
	LimitPrice float64 // dollars
}

// Availability is an advisory view of what a user could still commit to
// new orders. Pending orders reserve nothing at match time; the figures
// only help clients avoid entering orders that are bound to fail.
type Availability struct {
	UserID        string
	Ticker        string
	Cash          int64 // cents, balance minus the worst-case cost of pending buys
	PendingBuys   int
	Shares        int64 // held shares of Ticker minus pending sells
	PendingSells  int
	CommissionFee int64
}

// OrderService handles order entry, retrieval and cancellation.
type OrderService struct {
	store      store.Store
	commission int64
	notifier   CancelNotifier
}

// CancelNotifier is told about orders removed by their owner.
type CancelNotifier interface {
	OrderCancelled(order *domain.Order)
}

// NewOrderService creates an OrderService. Every order is charged the flat
// commission (cents). notifier may be nil.
func NewOrderService(st store.Store, commission int64, notifier CancelNotifier) *OrderService {
	return &OrderService{store: st, commission: commission, notifier: notifier}
}

// PlaceOrder validates the request and stores a new pending order. The
// order is only evaluated by the next matching cycle.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if err := validateUserID(req.UserID); err != nil {
		return nil, err
	}
	ticker := domain.NormalizeTicker(req.Ticker)
	if !domain.ValidTicker(ticker) {
		return nil, &domain.ValidationError{Message: "ticker must match ^[A-Z]{1,10}$"}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if req.Quantity > domain.MaxOrderQuantity {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("quantity must be at most %d", domain.MaxOrderQuantity)}
	}
	if req.LimitPrice <= 0 {
		return nil, &domain.ValidationError{Message: "limit_price must be greater than 0"}
	}
	if req.LimitPrice > float64(domain.MaxLimitPrice)/100 {
		return nil, &domain.ValidationError{Message: "limit_price must be at most " + domain.FormatCents(domain.MaxLimitPrice)}
	}
	limit, err := domain.DollarsToCents(req.LimitPrice)
	if err != nil {
		return nil, &domain.ValidationError{Message: "limit_price must have at most 2 decimal places"}
	}

	if _, err := s.store.GetAccount(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		OrderID:    uuid.New().String(),
		UserID:     req.UserID,
		Ticker:     ticker,
		Side:       req.Side,
		Quantity:   req.Quantity,
		LimitPrice: limit,
		Commission: s.commission,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns the order if it belongs to userID. Orders owned by
// someone else are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// CancelOrder deletes a pending order. It runs under the account's unit of
// work so it cannot interleave with a settlement of the same order: if the
// order settled first, ErrOrderNotPending is returned and nothing changes.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	var cancelled *domain.Order
	err := s.store.WithAccount(ctx, userID, func(tx store.AccountTx) error {
		o, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotPending
		}
		if err := tx.DeleteOrder(orderID); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.OrderCancelled(cancelled)
	}
	return cancelled, nil
}

// AvailableToTrade reports cash net of every pending buy (priced at its
// limit) and shares of ticker net of pending sells.
func (s *OrderService) AvailableToTrade(ctx context.Context, userID, ticker string) (*Availability, error) {
	ticker = domain.NormalizeTicker(ticker)
	if ticker != "" && !domain.ValidTicker(ticker) {
		return nil, &domain.ValidationError{Message: "ticker must match ^[A-Z]{1,10}$"}
	}

	a, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.ListPendingOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	av := &Availability{UserID: userID, Ticker: ticker, Cash: a.CashBalance, CommissionFee: s.commission}
	if ticker != "" {
		h, err := s.store.GetHolding(ctx, userID, ticker)
		if err != nil {
			return nil, err
		}
		if h != nil {
			av.Shares = h.Quantity
		}
	}

	for _, o := range pending {
		switch o.Side {
		case domain.OrderSideBuy:
			av.Cash = reserve(av.Cash, o)
			av.PendingBuys++
		case domain.OrderSideSell:
			if o.Ticker == ticker {
				av.Shares -= o.Quantity
				av.PendingSells++
			}
		}
	}
	return av, nil
}

// reserve subtracts the worst-case cost of a pending buy from cash. Amounts
// that do not fit in an int64 pin the figure at its minimum.
func reserve(cash int64, o *domain.Order) int64 {
	cost, err := o.Cost(o.LimitPrice)
	if err == nil {
		cash, err = domain.AddCents(cash, -cost)
	}
	if err != nil {
		return math.MinInt64
	}
	return cash
}
