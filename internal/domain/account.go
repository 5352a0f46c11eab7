package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents a user's position in a single ticker. A holding with
// zero quantity is never stored; it is deleted instead.
type Holding struct {
	UserID       string
	Ticker       string
	Quantity     int64
	AveragePrice decimal.Decimal // cents per share, weighted over BUY fills
	UpdatedAt    time.Time
}

// Account holds a user's simulated cash. StartingCash is the opening
// deposit the ledger is replayed from.
type Account struct {
	UserID       string
	CashBalance  int64 // cents
	StartingCash int64 // cents
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAfford reports whether the account can pay cost cents.
func (a *Account) CanAfford(cost int64) bool {
	return cost <= a.CashBalance
}

// ApplyBuy returns the holding that results from buying qty shares at price
// cents. h may be nil when the user holds no shares of the ticker yet.
func ApplyBuy(h *Holding, userID, ticker string, qty, price int64) *Holding {
	fill := decimal.NewFromInt(price)
	if h == nil || h.Quantity == 0 {
		return &Holding{
			UserID:       userID,
			Ticker:       ticker,
			Quantity:     qty,
			AveragePrice: fill,
		}
	}
	oldQty := decimal.NewFromInt(h.Quantity)
	newQty := h.Quantity + qty
	cost := h.AveragePrice.Mul(oldQty).Add(fill.Mul(decimal.NewFromInt(qty)))
	return &Holding{
		UserID:       h.UserID,
		Ticker:       h.Ticker,
		Quantity:     newQty,
		AveragePrice: cost.DivRound(decimal.NewFromInt(newQty), AveragePricePrecision),
	}
}

// ApplySell returns the holding left after selling qty shares, or nil when
// the position is closed. The average price is carried over unchanged.
func ApplySell(h *Holding, qty int64) *Holding {
	remaining := h.Quantity - qty
	if remaining == 0 {
		return nil
	}
	return &Holding{
		UserID:       h.UserID,
		Ticker:       h.Ticker,
		Quantity:     remaining,
		AveragePrice: h.AveragePrice,
	}
}
