package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry bounds for an order. Amounts that still overflow at settlement are
// caught by Cost.
const (
	MaxOrderQuantity = 1_000_000_000
	MaxLimitPrice    = 100_000_000_000 // cents, one billion dollars
)

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus represents the lifecycle state of an order. Completed and
// failed are terminal; a cancelled order is deleted rather than marked.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// Order is a user's pending intent to trade Quantity shares of Ticker once
// the market price crosses LimitPrice.
type Order struct {
	OrderID       string
	UserID        string
	Ticker        string
	Side          OrderSide
	Quantity      int64
	LimitPrice    int64 // cents, trigger threshold captured at entry
	Commission    int64 // cents, flat fee charged at settlement
	Status        OrderStatus
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PriceTriggered reports whether the exact dollar quote satisfies the
// order's limit. Both sides fire at the limit itself.
func (o *Order) PriceTriggered(quote decimal.Decimal) bool {
	limit := CentsToDecimal(o.LimitPrice)
	if o.Side == OrderSideBuy {
		return quote.LessThanOrEqual(limit)
	}
	return quote.GreaterThanOrEqual(limit)
}

// FillPrice converts a dollar quote to the cents charged at settlement.
// Buys round up and sells round down, so a triggered order always fills
// at or inside its limit.
func (o *Order) FillPrice(quote decimal.Decimal) int64 {
	cents := quote.Shift(2)
	if o.Side == OrderSideBuy {
		return cents.Ceil().IntPart()
	}
	return cents.Floor().IntPart()
}

// Cost returns quantity·price + commission in cents. It returns
// ErrAmountOverflow when the amount does not fit in an int64.
func (o *Order) Cost(price int64) (int64, error) {
	gross, err := MulCents(o.Quantity, price)
	if err != nil {
		return 0, err
	}
	return AddCents(gross, o.Commission)
}

// Clone returns a shallow copy safe to hand out of a store.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
