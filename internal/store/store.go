// Package store persists accounts, holdings, orders and the transaction
// ledger. Two implementations are provided: an in-memory store and a
// SQLite-backed store. Both serialize mutations per account through
// WithAccount.
package store

import (
	"context"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Store is the account store consumed by the matching engine and services.
//
// Getters return copies; mutating them has no effect on stored state.
// GetHolding returns (nil, nil) when the user holds no shares.
type Store interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, userID string) (*domain.Account, error)
	GetHolding(ctx context.Context, userID, ticker string) (*domain.Holding, error)
	ListHoldings(ctx context.Context, userID string) ([]*domain.Holding, error)

	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListPendingOrders(ctx context.Context) ([]*domain.Order, error)
	ListPendingOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error)

	ListTransactions(ctx context.Context, userID string) ([]*domain.Transaction, error)

	AppendSnapshot(ctx context.Context, s *domain.PortfolioSnapshot) error
	ListSnapshots(ctx context.Context, userID string) ([]*domain.PortfolioSnapshot, error)

	// WithAccount runs fn as one unit of work scoped to userID. Units for
	// the same account never interleave. If fn returns an error, none of
	// its writes are applied.
	WithAccount(ctx context.Context, userID string, fn func(tx AccountTx) error) error

	PriceArchive

	Close() error
}

// PriceArchive keeps at most one price per ticker and trading date.
type PriceArchive interface {
	// PutPrice stores p unless a point for the same ticker and date
	// exists. It reports whether p was stored.
	PutPrice(ctx context.Context, p *domain.PricePoint) (bool, error)
	// ListPrices returns the points dated within [from, to], oldest first.
	ListPrices(ctx context.Context, ticker string, from, to time.Time) ([]*domain.PricePoint, error)
	// LatestPrice returns the most recent point, or (nil, nil) if none.
	LatestPrice(ctx context.Context, ticker string) (*domain.PricePoint, error)
}

// AccountTx is the view of a single account inside WithAccount. Reads
// observe the unit's own earlier writes.
type AccountTx interface {
	Account() (*domain.Account, error)
	Holding(ticker string) (*domain.Holding, error)
	Order(orderID string) (*domain.Order, error)

	InsertTransaction(t *domain.Transaction) error
	PutHolding(h *domain.Holding) error
	DeleteHolding(ticker string) error
	SetCashBalance(cents int64) error
	SetOrderStatus(orderID string, status domain.OrderStatus, reason string) error
	DeleteOrder(orderID string) error
}
