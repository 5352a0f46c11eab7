package handler

import (
	"net/http"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
	"github.com/go-chi/chi/v5"
)

// PortfolioHandler handles HTTP requests for portfolio endpoints.
type PortfolioHandler struct {
	portfolioSvc *service.PortfolioService
	now          func() time.Time
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioSvc *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioSvc: portfolioSvc, now: time.Now}
}

type positionResponse struct {
	Ticker        string  `json:"ticker"`
	Quantity      int64   `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	Price         float64 `json:"price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Stale         bool    `json:"stale"`
}

type valuationResponse struct {
	UserID        string             `json:"user_id"`
	CashBalance   float64            `json:"cash_balance"`
	InvestedValue float64            `json:"invested_value"`
	TotalValue    float64            `json:"total_value"`
	Positions     []positionResponse `json:"positions"`
	ValuedAt      string             `json:"valued_at"`
}

type snapshotResponse struct {
	CashBalance   float64 `json:"cash_balance"`
	InvestedValue float64 `json:"invested_value"`
	TotalValue    float64 `json:"total_value"`
	TakenAt       string  `json:"taken_at"`
}

type historyResponse struct {
	UserID    string             `json:"user_id"`
	Snapshots []snapshotResponse `json:"snapshots"`
}

type performanceResponse struct {
	UserID                  string   `json:"user_id"`
	TotalValue              float64  `json:"total_value"`
	StartingCash            float64  `json:"starting_cash"`
	DailyChange             *float64 `json:"daily_change"`
	DailyChangePercent      *float64 `json:"daily_change_percent"`
	TotalReturn             float64  `json:"total_return"`
	TotalReturnPercent      float64  `json:"total_return_percent"`
	AnnualizedReturnPercent *float64 `json:"annualized_return_percent"`
	FirstTradeAt            *string  `json:"first_trade_at"`
	AsOf                    string   `json:"as_of"`
}

func buildSnapshotResponse(s *domain.PortfolioSnapshot) snapshotResponse {
	return snapshotResponse{
		CashBalance:   domain.CentsToDollars(s.CashBalance),
		InvestedValue: domain.CentsToDollars(s.InvestedValue),
		TotalValue:    domain.CentsToDollars(s.TotalValue),
		TakenAt:       s.TakenAt.UTC().Format(timeFormat),
	}
}

// Value handles GET /accounts/{user_id}/portfolio.
func (h *PortfolioHandler) Value(w http.ResponseWriter, r *http.Request) {
	v, err := h.portfolioSvc.Value(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	positions := make([]positionResponse, len(v.Positions))
	for i, p := range v.Positions {
		positions[i] = positionResponse{
			Ticker:        p.Ticker,
			Quantity:      p.Quantity,
			AveragePrice:  domain.AverageToDollars(p.AveragePrice),
			Price:         domain.CentsToDollars(p.Price),
			MarketValue:   domain.CentsToDollars(p.MarketValue),
			UnrealizedPnL: domain.CentsToDollars(p.UnrealizedPnL),
			Stale:         p.Stale,
		}
	}

	WriteJSON(w, http.StatusOK, valuationResponse{
		UserID:        v.UserID,
		CashBalance:   domain.CentsToDollars(v.CashBalance),
		InvestedValue: domain.CentsToDollars(v.InvestedValue),
		TotalValue:    domain.CentsToDollars(v.TotalValue),
		Positions:     positions,
		ValuedAt:      v.ValuedAt.UTC().Format(timeFormat),
	})
}

// Snapshot handles POST /accounts/{user_id}/portfolio/snapshots.
func (h *PortfolioHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.portfolioSvc.Snapshot(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildSnapshotResponse(s))
}

// History handles GET /accounts/{user_id}/portfolio/history.
func (h *PortfolioHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	snaps, err := h.portfolioSvc.History(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := historyResponse{UserID: userID, Snapshots: make([]snapshotResponse, len(snaps))}
	for i, s := range snaps {
		resp.Snapshots[i] = buildSnapshotResponse(s)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Performance handles GET /accounts/{user_id}/portfolio/performance.
func (h *PortfolioHandler) Performance(w http.ResponseWriter, r *http.Request) {
	p, err := h.portfolioSvc.Performance(r.Context(), chi.URLParam(r, "user_id"), h.now())
	if err != nil {
		mapError(w, err)
		return
	}

	resp := performanceResponse{
		UserID:                  p.UserID,
		TotalValue:              domain.CentsToDollars(p.TotalValue),
		StartingCash:            domain.CentsToDollars(p.StartingCash),
		DailyChangePercent:      p.DailyChangePercent,
		TotalReturn:             domain.CentsToDollars(p.TotalReturn),
		TotalReturnPercent:      p.TotalReturnPercent,
		AnnualizedReturnPercent: p.AnnualizedReturnPercent,
		AsOf:                    p.AsOf.Format(timeFormat),
	}
	if p.DailyChange != nil {
		d := domain.CentsToDollars(*p.DailyChange)
		resp.DailyChange = &d
	}
	if p.FirstTradeAt != nil {
		s := p.FirstTradeAt.UTC().Format(timeFormat)
		resp.FirstTradeAt = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}
