package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotPending      = errors.New("order_not_pending")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientShares   = errors.New("insufficient_shares")
	ErrPreconditionFailed   = errors.New("precondition_failed")
	ErrStoreUnavailable     = errors.New("store_unavailable")
	ErrPriceUnavailable     = errors.New("price_unavailable")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrMarketClosed         = errors.New("market_closed")
	ErrWebhookNotFound      = errors.New("webhook_not_found")
	ErrAmountOverflow       = errors.New("amount_overflow")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
