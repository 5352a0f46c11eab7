package domain

import "time"

// PortfolioSnapshot records the value of an account at a point in time.
type PortfolioSnapshot struct {
	UserID        string
	CashBalance   int64 // cents
	InvestedValue int64 // cents, Σ quantity·price
	TotalValue    int64 // cents
	TakenAt       time.Time
}
