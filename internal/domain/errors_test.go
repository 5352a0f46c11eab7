package domain

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "quantity must be a positive integer"}
	if err.Error() != "quantity must be a positive integer" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrAccountAlreadyExists,
		ErrAccountNotFound,
		ErrOrderNotFound,
		ErrOrderNotPending,
		ErrInsufficientFunds,
		ErrInsufficientShares,
		ErrPreconditionFailed,
		ErrStoreUnavailable,
		ErrPriceUnavailable,
		ErrInvalidPrice,
		ErrMarketClosed,
		ErrWebhookNotFound,
		ErrAmountOverflow,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
