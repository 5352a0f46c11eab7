package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/id"
	"github.com/efreitasn/papertrader/internal/store"
)

// Settler applies matched orders to the ledger. Each call runs as one
// store.WithAccount unit, so the transaction insert, the holding update,
// the cash update and the status change land together or not at all.
type Settler struct {
	store store.Store
	now   func() time.Time
}

func NewSettler(st store.Store) *Settler {
	return &Settler{store: st, now: time.Now}
}

// Settle fills order at fillPrice cents and returns the ledger entry.
//
// The order and account are re-read inside the unit. Errors:
//   - domain.ErrOrderNotFound: the order was cancelled first.
//   - domain.ErrOrderNotPending: the order is already terminal.
//   - domain.ErrPreconditionFailed wrapping ErrInsufficientFunds or
//     ErrInsufficientShares: the account can no longer cover the fill.
//   - domain.ErrPreconditionFailed wrapping ErrAmountOverflow: the amount
//     or the resulting balance does not fit in an int64.
//   - domain.ErrStoreUnavailable: persistence failed; nothing was applied.
func (s *Settler) Settle(ctx context.Context, order *domain.Order, fillPrice int64) (*domain.Transaction, error) {
	if fillPrice <= 0 {
		return nil, fmt.Errorf("%w: fill price %d", domain.ErrInvalidPrice, fillPrice)
	}

	var result *domain.Transaction
	err := s.store.WithAccount(ctx, order.UserID, func(tx store.AccountTx) error {
		current, err := pendingOrder(tx, order.OrderID)
		if err != nil {
			return err
		}
		account, err := tx.Account()
		if err != nil {
			return err
		}
		holding, err := tx.Holding(current.Ticker)
		if err != nil {
			return err
		}

		total, err := current.Cost(fillPrice)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPreconditionFailed, err)
		}

		executedAt := s.now()
		t := &domain.Transaction{
			TransactionID: id.NewAt(executedAt),
			UserID:        current.UserID,
			OrderID:       current.OrderID,
			Ticker:        current.Ticker,
			Side:          current.Side,
			Quantity:      current.Quantity,
			Price:         fillPrice,
			Commission:    current.Commission,
			TotalAmount:   total,
			ExecutedAt:    executedAt,
		}

		switch current.Side {
		case domain.OrderSideBuy:
			if !account.CanAfford(t.TotalAmount) {
				return fmt.Errorf("%w: %w: need %d, have %d",
					domain.ErrPreconditionFailed, domain.ErrInsufficientFunds, t.TotalAmount, account.CashBalance)
			}
			next := domain.ApplyBuy(holding, current.UserID, current.Ticker, current.Quantity, fillPrice)
			if err := tx.PutHolding(next); err != nil {
				return err
			}
		case domain.OrderSideSell:
			if holding == nil || holding.Quantity < current.Quantity {
				var have int64
				if holding != nil {
					have = holding.Quantity
				}
				return fmt.Errorf("%w: %w: need %d, have %d",
					domain.ErrPreconditionFailed, domain.ErrInsufficientShares, current.Quantity, have)
			}
			if next := domain.ApplySell(holding, current.Quantity); next == nil {
				err = tx.DeleteHolding(current.Ticker)
			} else {
				err = tx.PutHolding(next)
			}
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown side %q", domain.ErrPreconditionFailed, current.Side)
		}

		balance, err := domain.AddCents(account.CashBalance, t.CashDelta())
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPreconditionFailed, err)
		}
		if err := tx.InsertTransaction(t); err != nil {
			return err
		}
		if err := tx.SetCashBalance(balance); err != nil {
			return err
		}
		if err := tx.SetOrderStatus(current.OrderID, domain.OrderStatusCompleted, ""); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// Fail marks a still-pending order FAILED with reason.
func (s *Settler) Fail(ctx context.Context, order *domain.Order, reason string) error {
	err := s.store.WithAccount(ctx, order.UserID, func(tx store.AccountTx) error {
		if _, err := pendingOrder(tx, order.OrderID); err != nil {
			return err
		}
		return tx.SetOrderStatus(order.OrderID, domain.OrderStatusFailed, reason)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func pendingOrder(tx store.AccountTx, orderID string) (*domain.Order, error) {
	o, err := tx.Order(orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderNotPending, orderID, o.Status)
	}
	return o, nil
}

// classify keeps domain outcomes as they are and turns everything else
// into domain.ErrStoreUnavailable.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrPreconditionFailed),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrInvalidPrice):
		return err
	case errors.Is(err, domain.ErrAccountNotFound):
		return fmt.Errorf("%w: %w", domain.ErrPreconditionFailed, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// FailureReason returns the short reason stored on an order that failed
// settlement.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return domain.ErrInsufficientFunds.Error()
	case errors.Is(err, domain.ErrInsufficientShares):
		return domain.ErrInsufficientShares.Error()
	case errors.Is(err, domain.ErrAccountNotFound):
		return domain.ErrAccountNotFound.Error()
	case errors.Is(err, domain.ErrAmountOverflow):
		return domain.ErrAmountOverflow.Error()
	}
	return err.Error()
}
