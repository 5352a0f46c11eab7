package service

import (
	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
)

// OrderListener receives every order lifecycle notification.
type OrderListener interface {
	OrderCompleted(order *domain.Order, t *domain.Transaction)
	OrderFailed(order *domain.Order)
	OrderCancelled(order *domain.Order)
}

// Notifiers fans each notification out to every listener in order.
type Notifiers []OrderListener

func (n Notifiers) OrderCompleted(order *domain.Order, t *domain.Transaction) {
	for _, l := range n {
		l.OrderCompleted(order, t)
	}
}

func (n Notifiers) OrderFailed(order *domain.Order) {
	for _, l := range n {
		l.OrderFailed(order)
	}
}

func (n Notifiers) OrderCancelled(order *domain.Order) {
	for _, l := range n {
		l.OrderCancelled(order)
	}
}

var (
	_ engine.Notifier = Notifiers(nil)
	_ CancelNotifier  = Notifiers(nil)
)
