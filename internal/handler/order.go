package handler

import (
	"net/http"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	UserID     string  `json:"user_id"`
	Ticker     string  `json:"ticker"`
	Side       string  `json:"side"`
	Quantity   int64   `json:"quantity"`
	LimitPrice float64 `json:"limit_price"`
}

// orderResponse is the JSON response for a single order.
type orderResponse struct {
	OrderID       string  `json:"order_id"`
	UserID        string  `json:"user_id"`
	Ticker        string  `json:"ticker"`
	Side          string  `json:"side"`
	Quantity      int64   `json:"quantity"`
	LimitPrice    float64 `json:"limit_price"`
	Commission    float64 `json:"commission"`
	Status        string  `json:"status"`
	FailureReason *string `json:"failure_reason"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// PlaceOrder handles POST /orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.orderSvc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		UserID:     req.UserID,
		Ticker:     req.Ticker,
		Side:       domain.OrderSide(req.Side),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// GetOrder handles GET /orders/{order_id}?user_id=.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireQuery(w, r, "user_id")
	if !ok {
		return
	}

	order, err := h.orderSvc.GetOrder(r.Context(), userID, chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}?user_id=.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireQuery(w, r, "user_id")
	if !ok {
		return
	}

	order, err := h.orderSvc.CancelOrder(r.Context(), userID, chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:    o.OrderID,
		UserID:     o.UserID,
		Ticker:     o.Ticker,
		Side:       string(o.Side),
		Quantity:   o.Quantity,
		LimitPrice: domain.CentsToDollars(o.LimitPrice),
		Commission: domain.CentsToDollars(o.Commission),
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  o.UpdatedAt.UTC().Format(timeFormat),
	}
	if o.FailureReason != "" {
		reason := o.FailureReason
		resp.FailureReason = &reason
	}
	return resp
}
