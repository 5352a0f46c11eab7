package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:   true,
	domain.OrderStatusCompleted: true,
	domain.OrderStatusFailed:    true,
}

func validateUserID(userID string) error {
	if !userIDRegex.MatchString(userID) {
		return &domain.ValidationError{Message: "user_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return nil
}

// CashAudit compares the stored cash balance with the one obtained by
// replaying the ledger from the starting balance.
type CashAudit struct {
	UserID       string
	Recorded     int64
	Replayed     int64
	Transactions int
	Corrected    bool
}

// AccountService opens accounts and answers balance, holdings, ledger and
// order history queries.
type AccountService struct {
	store        store.Store
	startingCash int64
}

// NewAccountService creates an AccountService. New accounts receive
// startingCash cents.
func NewAccountService(st store.Store, startingCash int64) *AccountService {
	return &AccountService{store: st, startingCash: startingCash}
}

// Open creates an account funded with the starting cash.
func (s *AccountService) Open(ctx context.Context, userID string) (*domain.Account, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := &domain.Account{
		UserID:       userID,
		CashBalance:  s.startingCash,
		StartingCash: s.startingCash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AccountService) Get(ctx context.Context, userID string) (*domain.Account, error) {
	return s.store.GetAccount(ctx, userID)
}

// Holdings returns the user's positions sorted by ticker.
func (s *AccountService) Holdings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListHoldings(ctx, userID)
}

// Transactions returns the user's ledger, newest first.
func (s *AccountService) Transactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, userID)
}

// Orders returns a paginated list of the user's orders with optional
// status filtering.
func (s *AccountService) Orders(ctx context.Context, userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, 0, err
	}

	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: pending, completed, failed", *status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}

	return s.store.ListOrdersByUser(ctx, userID, status, page, limit)
}

// RecomputeCash replays the user's ledger from the deposit the account was
// opened with and rewrites the balance when it disagrees. It runs as an account unit so no
// settlement lands between the replay and the write.
func (s *AccountService) RecomputeCash(ctx context.Context, userID string) (*CashAudit, error) {
	var audit *CashAudit
	err := s.store.WithAccount(ctx, userID, func(tx store.AccountTx) error {
		a, err := tx.Account()
		if err != nil {
			return err
		}
		ledger, err := s.store.ListTransactions(ctx, userID)
		if err != nil {
			return err
		}

		replayed := a.StartingCash
		for _, t := range ledger {
			if replayed, err = domain.AddCents(replayed, t.CashDelta()); err != nil {
				return err
			}
		}
		audit = &CashAudit{
			UserID:       userID,
			Recorded:     a.CashBalance,
			Replayed:     replayed,
			Transactions: len(ledger),
		}
		if replayed == a.CashBalance {
			return nil
		}
		audit.Corrected = true
		return tx.SetCashBalance(replayed)
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}
