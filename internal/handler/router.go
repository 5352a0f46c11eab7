package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/papertrader/internal/service"
	"github.com/go-chi/chi/v5"
)

// Services groups what the HTTP API exposes.
type Services struct {
	Accounts  *service.AccountService
	Orders    *service.OrderService
	Portfolio *service.PortfolioService
	Market    *service.MarketService
	Webhooks  *service.WebhookService
	Matching  CycleTrigger
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(svc Services, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	accountH := NewAccountHandler(svc.Accounts, svc.Orders)
	portfolioH := NewPortfolioHandler(svc.Portfolio)
	orderH := NewOrderHandler(svc.Orders)
	marketH := NewMarketHandler(svc.Market)
	matchingH := NewMatchingHandler(svc.Matching, logger)
	webhookH := NewWebhookHandler(svc.Webhooks)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Account routes.
	r.Post("/accounts", accountH.Open)
	r.Route("/accounts/{user_id}", func(r chi.Router) {
		r.Get("/", accountH.Get)
		r.Get("/holdings", accountH.Holdings)
		r.Get("/transactions", accountH.Transactions)
		r.Get("/orders", accountH.ListOrders)
		r.Get("/available", accountH.Available)
		r.Post("/cash/recompute", accountH.RecomputeCash)

		r.Get("/portfolio", portfolioH.Value)
		r.Post("/portfolio/snapshots", portfolioH.Snapshot)
		r.Get("/portfolio/history", portfolioH.History)
		r.Get("/portfolio/performance", portfolioH.Performance)
	})

	// Order routes.
	r.Post("/orders", orderH.PlaceOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	// Matching and market routes.
	r.Post("/matching/run", matchingH.Run)
	r.Get("/market/status", marketH.Status)
	r.Get("/quotes/history", marketH.BatchHistory)
	r.Get("/quotes/{ticker}", marketH.Quote)
	r.Get("/quotes/{ticker}/history", marketH.History)

	// Webhook routes.
	r.Post("/webhooks", webhookH.Upsert)
	r.Get("/webhooks", webhookH.List)
	r.Delete("/webhooks/{webhook_id}", webhookH.Delete)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON rejects POST, PUT and PATCH requests that carry a body
// without an application/json Content-Type. Bodiless POSTs (manual
// triggers such as /matching/run) pass through.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			hasBody := r.ContentLength != 0
			if hasBody && (ct == "" || !strings.HasPrefix(ct, "application/json")) {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
