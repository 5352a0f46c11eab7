package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/calendar"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/quote"
	"github.com/efreitasn/papertrader/internal/service"
	"github.com/efreitasn/papertrader/internal/store"
)

// switchCalendar reports the market open or closed on demand.
type switchCalendar struct {
	open atomic.Bool
}

func (c *switchCalendar) IsMarketOpen(time.Time) bool { return c.open.Load() }

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router   http.Handler
	store    *store.MemoryStore
	prices   *quote.StaticSource
	history  *quote.History
	calendar *switchCalendar
	webhooks *service.WebhookService
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMemoryStore()
	prices := quote.NewStaticSource(map[string]int64{"XYZ": 4800})
	history := quote.NewHistory(st, nil, nil, logger)
	oracle := quote.NewTieredOracle(prices, nil, time.Minute, history)
	cal, err := calendar.New("America/New_York", nil)
	if err != nil {
		panic(err)
	}

	webhookSvc := service.NewWebhookService(store.NewWebhookStore(), st, 5*time.Second, logger)
	notifiers := service.Notifiers{webhookSvc}
	portfolioSvc := service.NewPortfolioService(st, oracle, logger)

	matcher := engine.NewMatcher(st, oracle, notifiers, portfolioSvc, engine.Timeouts{Price: time.Second, Store: time.Second}, logger)
	gate := &switchCalendar{}
	gate.open.Store(true)
	scheduler := engine.NewScheduler(time.Hour, matcher, gate, logger)

	router := NewRouter(Services{
		Accounts:  service.NewAccountService(st, 10000000),
		Orders:    service.NewOrderService(st, 1999, notifiers),
		Portfolio: portfolioSvc,
		Market:    service.NewMarketService(cal, oracle, history),
		Webhooks:  webhookSvc,
		Matching:  scheduler,
	}, logger)

	return &testEnv{
		router:   router,
		store:    st,
		prices:   prices,
		history:  history,
		calendar: gate,
		webhooks: webhookSvc,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func (env *testEnv) openAccount(t *testing.T, userID string) {
	t.Helper()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": userID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("open account %s: expected 201, got %d: %s", userID, rr.Code, rr.Body.String())
	}
}

func (env *testEnv) placeOrder(t *testing.T, userID, side, ticker string, qty int64, limit float64) map[string]any {
	t.Helper()
	rr := env.doJSON(t, "POST", "/orders", map[string]any{
		"user_id":     userID,
		"ticker":      ticker,
		"side":        side,
		"quantity":    qty,
		"limit_price": limit,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("place order: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	return resp
}

func (env *testEnv) runCycle(t *testing.T) map[string]any {
	t.Helper()
	rr := env.doJSON(t, "POST", "/matching/run", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("run cycle: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected application/json, got %s", ct)
	}
}

// --- Account Endpoints ---

func TestAccount_Open_Success(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": "alice"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["user_id"] != "alice" {
		t.Fatalf("expected user_id=alice, got %v", resp["user_id"])
	}
	if resp["cash_balance"] != 100000.0 {
		t.Fatalf("expected cash_balance=100000, got %v", resp["cash_balance"])
	}
	createdAt, ok := resp["created_at"].(string)
	if !ok {
		t.Fatal("created_at should be a string")
	}
	if _, err := time.Parse(time.RFC3339, createdAt); err != nil {
		t.Fatalf("created_at not RFC 3339: %v", err)
	}
}

func TestAccount_Open_Duplicate(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")

	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": "alice"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["error"] != "account_already_exists" {
		t.Fatalf("expected error=account_already_exists, got %v", resp["error"])
	}
}

func TestAccount_Open_Invalid(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": "no spaces allowed"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": "a", "extra": 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown fields: expected 400, got %d", rr.Code)
	}
}

func TestAccount_NotFound(t *testing.T) {
	env := newTestEnv()
	for _, path := range []string{
		"/accounts/ghost",
		"/accounts/ghost/holdings",
		"/accounts/ghost/transactions",
		"/accounts/ghost/orders",
		"/accounts/ghost/portfolio",
		"/accounts/ghost/portfolio/history",
		"/accounts/ghost/available",
	} {
		rr := env.doJSON(t, "GET", path, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, rr.Code)
		}
	}
}

func TestAccount_ListOrders_Validation(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")

	for _, q := range []string{"?page=0", "?page=x", "?limit=101", "?limit=x", "?status=cancelled"} {
		rr := env.doJSON(t, "GET", "/accounts/alice/orders"+q, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

// --- Order Endpoints ---

func TestOrder_Place_Success(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")

	resp := env.placeOrder(t, "alice", "buy", "xyz", 5, 50.00)
	if resp["ticker"] != "XYZ" {
		t.Errorf("expected ticker XYZ, got %v", resp["ticker"])
	}
	if resp["status"] != "pending" {
		t.Errorf("expected status pending, got %v", resp["status"])
	}
	if resp["limit_price"] != 50.0 || resp["commission"] != 19.99 {
		t.Errorf("unexpected money fields: %v / %v", resp["limit_price"], resp["commission"])
	}
	if resp["failure_reason"] != nil {
		t.Errorf("expected null failure_reason, got %v", resp["failure_reason"])
	}
}

func TestOrder_Place_ValidationErrors(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad side", map[string]any{"user_id": "alice", "ticker": "XYZ", "side": "bid", "quantity": 1, "limit_price": 1}},
		{"bad ticker", map[string]any{"user_id": "alice", "ticker": "X1", "side": "buy", "quantity": 1, "limit_price": 1}},
		{"zero quantity", map[string]any{"user_id": "alice", "ticker": "XYZ", "side": "buy", "quantity": 0, "limit_price": 1}},
		{"negative price", map[string]any{"user_id": "alice", "ticker": "XYZ", "side": "buy", "quantity": 1, "limit_price": -1}},
		{"too many decimals", map[string]any{"user_id": "alice", "ticker": "XYZ", "side": "buy", "quantity": 1, "limit_price": 1.234}},
		{"quantity too large", map[string]any{"user_id": "alice", "ticker": "XYZ", "side": "buy", "quantity": 46116860184273880, "limit_price": 2}},
		{"price too large", map[string]any{"user_id": "alice", "ticker": "XYZ", "side": "buy", "quantity": 1, "limit_price": 1e12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doJSON(t, "POST", "/orders", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp map[string]any
			decodeJSON(t, rr, &resp)
			if resp["error"] != "validation_error" {
				t.Fatalf("expected validation_error, got %v", resp["error"])
			}
		})
	}
}

func TestOrder_Place_AccountNotFound(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/orders", map[string]any{
		"user_id": "ghost", "ticker": "XYZ", "side": "buy", "quantity": 1, "limit_price": 1,
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOrder_GetAndCancel(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")
	env.openAccount(t, "bob")
	order := env.placeOrder(t, "alice", "buy", "XYZ", 1, 10)
	id := order["order_id"].(string)

	if rr := env.doJSON(t, "GET", "/orders/"+id, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: expected 400, got %d", rr.Code)
	}
	if rr := env.doJSON(t, "GET", "/orders/"+id+"?user_id=bob", nil); rr.Code != http.StatusNotFound {
		t.Errorf("other user: expected 404, got %d", rr.Code)
	}
	if rr := env.doJSON(t, "GET", "/orders/"+id+"?user_id=alice", nil); rr.Code != http.StatusOK {
		t.Errorf("owner: expected 200, got %d", rr.Code)
	}

	if rr := env.doJSON(t, "DELETE", "/orders/"+id+"?user_id=bob", nil); rr.Code != http.StatusNotFound {
		t.Errorf("other user cancel: expected 404, got %d", rr.Code)
	}
	if rr := env.doJSON(t, "DELETE", "/orders/"+id+"?user_id=alice", nil); rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rr.Code)
	}
	if rr := env.doJSON(t, "GET", "/orders/"+id+"?user_id=alice", nil); rr.Code != http.StatusNotFound {
		t.Errorf("cancelled order: expected 404, got %d", rr.Code)
	}
}

func TestOrder_Cancel_AfterCompletion(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")
	order := env.placeOrder(t, "alice", "buy", "XYZ", 5, 50)
	env.runCycle(t)

	rr := env.doJSON(t, "DELETE", "/orders/"+order["order_id"].(string)+"?user_id=alice", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["error"] != "order_not_pending" {
		t.Fatalf("expected order_not_pending, got %v", resp["error"])
	}
}

// --- Matching ---

func TestMatching_BuyThenSellFlow(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")

	buy := env.placeOrder(t, "alice", "buy", "XYZ", 5, 50)
	report := env.runCycle(t)
	if report["completed"] != 1.0 || report["evaluated"] != 1.0 {
		t.Fatalf("unexpected report %v", report)
	}

	var acct map[string]any
	decodeJSON(t, env.doJSON(t, "GET", "/accounts/alice", nil), &acct)
	if acct["cash_balance"] != 99740.01 {
		t.Fatalf("expected cash 99740.01, got %v", acct["cash_balance"])
	}

	var order map[string]any
	decodeJSON(t, env.doJSON(t, "GET", "/orders/"+buy["order_id"].(string)+"?user_id=alice", nil), &order)
	if order["status"] != "completed" {
		t.Fatalf("expected completed, got %v", order["status"])
	}

	var holdings struct {
		Holdings []map[string]any `json:"holdings"`
	}
	decodeJSON(t, env.doJSON(t, "GET", "/accounts/alice/holdings", nil), &holdings)
	if len(holdings.Holdings) != 1 || holdings.Holdings[0]["quantity"] != 5.0 || holdings.Holdings[0]["average_price"] != 48.0 {
		t.Fatalf("unexpected holdings %v", holdings.Holdings)
	}

	// Sell above market holds; raising the market fills it.
	env.placeOrder(t, "alice", "sell", "XYZ", 5, 55)
	report = env.runCycle(t)
	if report["held"] != 1.0 {
		t.Fatalf("expected sell held, got %v", report)
	}
	env.prices.Set("XYZ", 5500)
	report = env.runCycle(t)
	if report["completed"] != 1.0 {
		t.Fatalf("expected sell completed, got %v", report)
	}

	decodeJSON(t, env.doJSON(t, "GET", "/accounts/alice/holdings", nil), &holdings)
	if len(holdings.Holdings) != 0 {
		t.Fatalf("holding should be closed, got %v", holdings.Holdings)
	}

	var ledger struct {
		Transactions []map[string]any `json:"transactions"`
	}
	decodeJSON(t, env.doJSON(t, "GET", "/accounts/alice/transactions", nil), &ledger)
	if len(ledger.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(ledger.Transactions))
	}
	if ledger.Transactions[0]["side"] != "sell" || ledger.Transactions[0]["total_amount"] != 294.99 {
		t.Fatalf("newest transaction should be the sell, got %v", ledger.Transactions[0])
	}

	// 100000 - 259.99 + 294.99; each settlement appended a snapshot.
	var history struct {
		Snapshots []map[string]any `json:"snapshots"`
	}
	decodeJSON(t, env.doJSON(t, "GET", "/accounts/alice/portfolio/history", nil), &history)
	if len(history.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(history.Snapshots))
	}
	if history.Snapshots[1]["total_value"] != 100035.0 {
		t.Fatalf("expected total 100035, got %v", history.Snapshots[1]["total_value"])
	}

	var audit map[string]any
	rr := env.doJSON(t, "POST", "/accounts/alice/cash/recompute", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("recompute: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	decodeJSON(t, rr, &audit)
	if audit["corrected"] != false || audit["replayed_cash"] != 100035.0 {
		t.Fatalf("unexpected audit %v", audit)
	}
}

func TestMatching_InsufficientSharesStaysPending(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")
	order := env.placeOrder(t, "alice", "sell", "XYZ", 1, 10)

	report := env.runCycle(t)
	if report["held"] != 1.0 {
		t.Fatalf("expected held, got %v", report)
	}
	var resp map[string]any
	decodeJSON(t, env.doJSON(t, "GET", "/orders/"+order["order_id"].(string)+"?user_id=alice", nil), &resp)
	if resp["status"] != "pending" {
		t.Fatalf("expected pending, got %v", resp["status"])
	}
}

func TestMatching_MarketClosed(t *testing.T) {
	env := newTestEnv()
	env.calendar.open.Store(false)

	rr := env.doJSON(t, "POST", "/matching/run", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["error"] != "market_closed" {
		t.Fatalf("expected market_closed, got %v", resp["error"])
	}

	if rr := env.doJSON(t, "POST", "/matching/run?force=true", nil); rr.Code != http.StatusOK {
		t.Fatalf("forced run: expected 200, got %d", rr.Code)
	}
	if rr := env.doJSON(t, "POST", "/matching/run?force=maybe", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad force: expected 400, got %d", rr.Code)
	}
}

// --- Portfolio, market and quotes ---

func TestPortfolio_ValueAndSnapshot(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")
	env.placeOrder(t, "alice", "buy", "XYZ", 10, 48)
	env.runCycle(t)
	env.prices.Set("XYZ", 5000)

	var v map[string]any
	decodeJSON(t, env.doJSON(t, "GET", "/accounts/alice/portfolio", nil), &v)
	// Display reads are served from the quote cached by settlement.
	if v["invested_value"] != 480.0 {
		t.Fatalf("expected invested 480, got %v", v["invested_value"])
	}
	positions := v["positions"].([]any)
	if len(positions) != 1 || positions[0].(map[string]any)["unrealized_pnl"] != 0.0 {
		t.Fatalf("unexpected positions %v", positions)
	}

	rr := env.doJSON(t, "POST", "/accounts/alice/portfolio/snapshots", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("snapshot: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMarket_StatusAndQuote(t *testing.T) {
	env := newTestEnv()

	var st map[string]any
	rr := env.doJSON(t, "GET", "/market/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	decodeJSON(t, rr, &st)
	if st["timezone"] != "America/New_York" {
		t.Fatalf("unexpected timezone %v", st["timezone"])
	}

	var q map[string]any
	rr = env.doJSON(t, "GET", "/quotes/xyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	decodeJSON(t, rr, &q)
	if q["ticker"] != "XYZ" || q["price"] != 48.0 {
		t.Fatalf("unexpected quote %v", q)
	}

	if rr := env.doJSON(t, "GET", "/quotes/NOPE", nil); rr.Code != http.StatusBadGateway {
		t.Fatalf("unknown ticker: expected 502, got %d", rr.Code)
	}
}

func TestMarket_PriceHistory(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	env.history.Record(ctx, "XYZ", decimal.RequireFromString("48.004"), "realtime", true, day.Add(15*time.Hour))
	env.history.Record(ctx, "XYZ", decimal.RequireFromString("49.10"), "delayed", false, day.AddDate(0, 0, 1))
	env.history.Record(ctx, "ABC", decimal.RequireFromString("9"), "delayed", false, day)

	rr := env.doJSON(t, "GET", "/quotes/xyz/history?from=2026-03-01&to=2026-03-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var h struct {
		Ticker string `json:"ticker"`
		Prices []struct {
			Date          string `json:"date"`
			Price         string `json:"price"`
			IsTransaction bool   `json:"is_transaction"`
		} `json:"prices"`
	}
	decodeJSON(t, rr, &h)
	if h.Ticker != "XYZ" || len(h.Prices) != 2 {
		t.Fatalf("unexpected history %+v", h)
	}
	if h.Prices[0].Date != "2026-03-02" || h.Prices[0].Price != "48.004" || !h.Prices[0].IsTransaction {
		t.Fatalf("first point = %+v", h.Prices[0])
	}

	rr = env.doJSON(t, "GET", "/quotes/history?tickers=XYZ,abc&from=2026-03-01&to=2026-03-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("batch: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var b struct {
		Tickers map[string][]map[string]any `json:"tickers"`
	}
	decodeJSON(t, rr, &b)
	if len(b.Tickers["XYZ"]) != 2 || len(b.Tickers["ABC"]) != 1 {
		t.Fatalf("unexpected batch %+v", b.Tickers)
	}

	for _, path := range []string{
		"/quotes/XYZ/history?from=03-01-2026",
		"/quotes/XYZ/history?from=2026-03-05&to=2026-03-01",
		"/quotes/history?from=2026-03-01",
	} {
		if rr := env.doJSON(t, "GET", path, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rr.Code)
		}
	}
}

func TestPortfolio_Performance(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")
	env.placeOrder(t, "alice", "buy", "XYZ", 10, 48)
	env.runCycle(t)

	rr := env.doJSON(t, "GET", "/accounts/alice/portfolio/performance", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var p map[string]any
	decodeJSON(t, rr, &p)
	if p["total_value"] != 99980.01 || p["starting_cash"] != 100000.0 || p["total_return"] != -19.99 {
		t.Fatalf("unexpected performance %v", p)
	}
	if p["daily_change"] != nil || p["annualized_return_percent"] != nil {
		t.Fatalf("expected no daily change or annualized return yet, got %v", p)
	}
	if _, ok := p["first_trade_at"].(string); !ok {
		t.Fatalf("first_trade_at = %v", p["first_trade_at"])
	}

	if rr := env.doJSON(t, "GET", "/accounts/ghost/portfolio/performance", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown account: expected 404, got %d", rr.Code)
	}
}

// --- Webhooks ---

func TestWebhook_Lifecycle(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")

	body := map[string]any{
		"user_id": "alice",
		"url":     "https://example.com/hooks",
		"events":  []string{"order.completed", "order.failed"},
	}
	rr := env.doJSON(t, "POST", "/webhooks", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := env.doJSON(t, "POST", "/webhooks", body); rr.Code != http.StatusOK {
		t.Fatalf("re-register: expected 200, got %d", rr.Code)
	}

	var list webhookListResponse
	rr = env.doJSON(t, "GET", "/webhooks?user_id=alice", nil)
	decodeJSON(t, rr, &list)
	if len(list.Webhooks) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(list.Webhooks))
	}

	id := list.Webhooks[0].WebhookID
	if rr := env.doJSON(t, "DELETE", "/webhooks/"+id+"?user_id=bob", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("other user delete: expected 404, got %d", rr.Code)
	}
	if rr := env.doJSON(t, "DELETE", "/webhooks/"+id+"?user_id=alice", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	if rr := env.doJSON(t, "GET", "/webhooks", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("list without user_id: expected 400, got %d", rr.Code)
	}
}

func TestWebhook_Upsert_Validation(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")

	rr := env.doJSON(t, "POST", "/webhooks", map[string]any{
		"user_id": "alice", "url": "http://example.com", "events": []string{"order.completed"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = env.doJSON(t, "POST", "/webhooks", map[string]any{
		"user_id": "ghost", "url": "https://example.com", "events": []string{"order.completed"},
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

// --- Content type and response format ---

func TestContentType_MissingOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/accounts", "", `{"user_id":"alice"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestContentType_WrongOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/orders", "text/plain", `{"user_id":"alice"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["error"] != "invalid_request" {
		t.Fatalf("expected invalid_request, got %v", resp["error"])
	}
}

func TestContentType_BodilessPostAllowed(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/matching/run", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestResponseFormat_SnakeCaseFields(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice")
	order := env.placeOrder(t, "alice", "buy", "XYZ", 1, 10)

	for _, key := range []string{"order_id", "user_id", "limit_price", "created_at", "updated_at", "failure_reason"} {
		if _, ok := order[key]; !ok {
			t.Errorf("missing field %q in %v", key, order)
		}
	}
}
