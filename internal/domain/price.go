package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is the archived price of a ticker for one trading date. At
// most one point is kept per ticker and date.
type PricePoint struct {
	Ticker        string
	Date          time.Time       // midnight UTC of the trading date
	Price         decimal.Decimal // dollars, exact as quoted
	Source        string
	IsTransaction bool // captured while settling an order
	CreatedAt     time.Time
}

// PriceDate truncates t to the UTC calendar date used to key price points.
func PriceDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
