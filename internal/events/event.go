// Package events defines the order lifecycle notifications and publishes
// them to Kafka.
package events

import (
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Event types.
const (
	OrderCompleted = "order.completed"
	OrderFailed    = "order.failed"
	OrderCancelled = "order.cancelled"
)

// Types lists every event type a subscriber may ask for.
var Types = []string{OrderCompleted, OrderFailed, OrderCancelled}

// OrderEvent is the JSON body shared by webhook deliveries and Kafka
// messages.
type OrderEvent struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      OrderEventData `json:"data"`
}

type OrderEventData struct {
	UserID        string   `json:"user_id"`
	OrderID       string   `json:"order_id"`
	Ticker        string   `json:"ticker"`
	Side          string   `json:"side"`
	Quantity      int64    `json:"quantity"`
	LimitPrice    float64  `json:"limit_price"`
	Commission    float64  `json:"commission"`
	Status        string   `json:"status"`
	FailureReason string   `json:"failure_reason,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty"`
	FillPrice     *float64 `json:"fill_price,omitempty"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
}

// NewOrderEvent builds the event for order. t is the settlement
// transaction for order.completed and nil otherwise.
func NewOrderEvent(event string, order *domain.Order, t *domain.Transaction, at time.Time) OrderEvent {
	data := OrderEventData{
		UserID:        order.UserID,
		OrderID:       order.OrderID,
		Ticker:        order.Ticker,
		Side:          string(order.Side),
		Quantity:      order.Quantity,
		LimitPrice:    domain.CentsToDollars(order.LimitPrice),
		Commission:    domain.CentsToDollars(order.Commission),
		Status:        string(order.Status),
		FailureReason: order.FailureReason,
	}
	if t != nil {
		fill := domain.CentsToDollars(t.Price)
		total := domain.CentsToDollars(t.TotalAmount)
		data.TransactionID = t.TransactionID
		data.FillPrice = &fill
		data.TotalAmount = &total
		at = t.ExecutedAt
	}
	return OrderEvent{
		Event:     event,
		Timestamp: at.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      data,
	}
}
