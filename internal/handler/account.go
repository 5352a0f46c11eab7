package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
	"github.com/go-chi/chi/v5"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
	orderSvc   *service.OrderService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, orderSvc *service.OrderService) *AccountHandler {
	return &AccountHandler{
		accountSvc: accountSvc,
		orderSvc:   orderSvc,
	}
}

// openAccountRequest is the JSON request body for POST /accounts.
type openAccountRequest struct {
	UserID string `json:"user_id"`
}

// accountResponse is the JSON response for account endpoints.
type accountResponse struct {
	UserID       string  `json:"user_id"`
	CashBalance  float64 `json:"cash_balance"`
	StartingCash float64 `json:"starting_cash"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// holdingResponse is a single position.
type holdingResponse struct {
	Ticker       string  `json:"ticker"`
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
}

type holdingListResponse struct {
	UserID   string            `json:"user_id"`
	Holdings []holdingResponse `json:"holdings"`
}

// transactionResponse is a single ledger entry.
type transactionResponse struct {
	TransactionID string  `json:"transaction_id"`
	OrderID       string  `json:"order_id"`
	Ticker        string  `json:"ticker"`
	Side          string  `json:"side"`
	Quantity      int64   `json:"quantity"`
	Price         float64 `json:"price"`
	Commission    float64 `json:"commission"`
	TotalAmount   float64 `json:"total_amount"`
	ExecutedAt    string  `json:"executed_at"`
}

type transactionListResponse struct {
	UserID       string                `json:"user_id"`
	Transactions []transactionResponse `json:"transactions"`
}

// orderListResponse is the JSON response for GET /accounts/{user_id}/orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type availabilityResponse struct {
	UserID       string  `json:"user_id"`
	Ticker       string  `json:"ticker,omitempty"`
	Cash         float64 `json:"available_cash"`
	PendingBuys  int     `json:"pending_buys"`
	Shares       int64   `json:"available_shares"`
	PendingSells int     `json:"pending_sells"`
	Commission   float64 `json:"commission"`
}

type cashAuditResponse struct {
	UserID       string  `json:"user_id"`
	Recorded     float64 `json:"recorded_cash"`
	Replayed     float64 `json:"replayed_cash"`
	Transactions int     `json:"transactions"`
	Corrected    bool    `json:"corrected"`
}

func buildAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		UserID:       a.UserID,
		CashBalance:  domain.CentsToDollars(a.CashBalance),
		StartingCash: domain.CentsToDollars(a.StartingCash),
		CreatedAt:    a.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:    a.UpdatedAt.UTC().Format(timeFormat),
	}
}

// Open handles POST /accounts.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.accountSvc.Open(r.Context(), req.UserID)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildAccountResponse(a))
}

// Get handles GET /accounts/{user_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.accountSvc.Get(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildAccountResponse(a))
}

// Holdings handles GET /accounts/{user_id}/holdings.
func (h *AccountHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	holdings, err := h.accountSvc.Holdings(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := holdingListResponse{UserID: userID, Holdings: make([]holdingResponse, len(holdings))}
	for i, hd := range holdings {
		resp.Holdings[i] = holdingResponse{
			Ticker:       hd.Ticker,
			Quantity:     hd.Quantity,
			AveragePrice: domain.AverageToDollars(hd.AveragePrice),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Transactions handles GET /accounts/{user_id}/transactions.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	ledger, err := h.accountSvc.Transactions(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := transactionListResponse{UserID: userID, Transactions: make([]transactionResponse, len(ledger))}
	for i, t := range ledger {
		resp.Transactions[i] = transactionResponse{
			TransactionID: t.TransactionID,
			OrderID:       t.OrderID,
			Ticker:        t.Ticker,
			Side:          string(t.Side),
			Quantity:      t.Quantity,
			Price:         domain.CentsToDollars(t.Price),
			Commission:    domain.CentsToDollars(t.Commission),
			TotalAmount:   domain.CentsToDollars(t.TotalAmount),
			ExecutedAt:    t.ExecutedAt.UTC().Format(timeFormat),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListOrders handles GET /accounts/{user_id}/orders.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	// Parse query params.
	var statusFilter *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.OrderStatus(s)
		statusFilter = &status
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	orders, total, err := h.accountSvc.Orders(r.Context(), userID, statusFilter, page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	summaries := make([]orderResponse, len(orders))
	for i, o := range orders {
		summaries[i] = buildOrderResponse(o)
	}

	WriteJSON(w, http.StatusOK, orderListResponse{
		Orders: summaries,
		Total:  total,
		Page:   page,
		Limit:  limit,
	})
}

// Available handles GET /accounts/{user_id}/available?ticker=.
func (h *AccountHandler) Available(w http.ResponseWriter, r *http.Request) {
	av, err := h.orderSvc.AvailableToTrade(r.Context(), chi.URLParam(r, "user_id"), r.URL.Query().Get("ticker"))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, availabilityResponse{
		UserID:       av.UserID,
		Ticker:       av.Ticker,
		Cash:         domain.CentsToDollars(av.Cash),
		PendingBuys:  av.PendingBuys,
		Shares:       av.Shares,
		PendingSells: av.PendingSells,
		Commission:   domain.CentsToDollars(av.CommissionFee),
	})
}

// RecomputeCash handles POST /accounts/{user_id}/cash/recompute.
func (h *AccountHandler) RecomputeCash(w http.ResponseWriter, r *http.Request) {
	audit, err := h.accountSvc.RecomputeCash(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, cashAuditResponse{
		UserID:       audit.UserID,
		Recorded:     domain.CentsToDollars(audit.Recorded),
		Replayed:     domain.CentsToDollars(audit.Replayed),
		Transactions: audit.Transactions,
		Corrected:    audit.Corrected,
	})
}
