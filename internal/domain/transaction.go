package domain

import "time"

// Transaction is an append-only ledger entry produced by settling an order.
type Transaction struct {
	TransactionID string
	UserID        string
	OrderID       string
	Ticker        string
	Side          OrderSide
	Quantity      int64
	Price         int64 // cents, the fill price
	Commission    int64 // cents
	TotalAmount   int64 // cents, Quantity*Price + Commission
	ExecutedAt    time.Time
}

// CashDelta is the signed change the transaction applies to cash.
func (t *Transaction) CashDelta() int64 {
	if t.Side == OrderSideBuy {
		return -t.TotalAmount
	}
	return t.TotalAmount
}
