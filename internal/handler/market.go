package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
	"github.com/go-chi/chi/v5"
)

// MarketHandler handles HTTP requests for market session and quote endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
	now       func() time.Time
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc, now: time.Now}
}

type marketStatusResponse struct {
	Open           bool    `json:"open"`
	TradingDay     bool    `json:"trading_day"`
	Timezone       string  `json:"timezone"`
	Now            string  `json:"now"`
	NextOpen       *string `json:"next_open"`
	LastTradingDay string  `json:"last_trading_day"`
}

type quoteResponse struct {
	Ticker   string  `json:"ticker"`
	Price    float64 `json:"price"`
	Exact    string  `json:"exact_price"`
	QuotedAt string  `json:"quoted_at"`
}

type pricePointResponse struct {
	Date          string `json:"date"`
	Price         string `json:"price"`
	Source        string `json:"source"`
	IsTransaction bool   `json:"is_transaction"`
}

type priceHistoryResponse struct {
	Ticker string               `json:"ticker"`
	From   string               `json:"from"`
	To     string               `json:"to"`
	Prices []pricePointResponse `json:"prices"`
}

type batchHistoryResponse struct {
	From    string                          `json:"from"`
	To      string                          `json:"to"`
	Tickers map[string][]pricePointResponse `json:"tickers"`
}

// defaultHistoryDays is the range served when from is omitted.
const defaultHistoryDays = 30

func buildPricePoints(points []*domain.PricePoint) []pricePointResponse {
	out := make([]pricePointResponse, len(points))
	for i, p := range points {
		out[i] = pricePointResponse{
			Date:          p.Date.Format(time.DateOnly),
			Price:         p.Price.String(),
			Source:        p.Source,
			IsTransaction: p.IsTransaction,
		}
	}
	return out
}

// historyRange reads the from and to query parameters (YYYY-MM-DD). to
// defaults to today and from to defaultHistoryDays before to.
func (h *MarketHandler) historyRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	to := domain.PriceDate(h.now())
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "to must be a date in YYYY-MM-DD format")
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	from := to.AddDate(0, 0, -defaultHistoryDays)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "from must be a date in YYYY-MM-DD format")
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	return from, to, true
}

// Status handles GET /market/status.
func (h *MarketHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.marketSvc.Status(h.now())

	resp := marketStatusResponse{
		Open:           st.Open,
		TradingDay:     st.TradingDay,
		Timezone:       st.Timezone,
		Now:            st.Now.Format(time.RFC3339),
		LastTradingDay: st.LastTradingDay.Format(time.DateOnly),
	}
	if !st.NextOpen.IsZero() {
		s := st.NextOpen.Format(time.RFC3339)
		resp.NextOpen = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Quote handles GET /quotes/{ticker}.
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.marketSvc.Quote(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, quoteResponse{
		Ticker:   q.Ticker,
		Price:    domain.CentsToDollars(q.Price),
		Exact:    q.Exact.String(),
		QuotedAt: q.QuotedAt.Format(timeFormat),
	})
}

// History handles GET /quotes/{ticker}/history.
func (h *MarketHandler) History(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.historyRange(w, r)
	if !ok {
		return
	}
	ticker := domain.NormalizeTicker(chi.URLParam(r, "ticker"))
	points, err := h.marketSvc.History(r.Context(), ticker, from, to)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, priceHistoryResponse{
		Ticker: ticker,
		From:   from.Format(time.DateOnly),
		To:     to.Format(time.DateOnly),
		Prices: buildPricePoints(points),
	})
}

// BatchHistory handles GET /quotes/history?tickers=A,B.
func (h *MarketHandler) BatchHistory(w http.ResponseWriter, r *http.Request) {
	raw, ok := requireQuery(w, r, "tickers")
	if !ok {
		return
	}
	from, to, ok := h.historyRange(w, r)
	if !ok {
		return
	}
	var tickers []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}

	batch, err := h.marketSvc.BatchHistory(r.Context(), tickers, from, to)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := batchHistoryResponse{
		From:    from.Format(time.DateOnly),
		To:      to.Format(time.DateOnly),
		Tickers: make(map[string][]pricePointResponse, len(batch)),
	}
	for ticker, points := range batch {
		resp.Tickers[ticker] = buildPricePoints(points)
	}
	WriteJSON(w, http.StatusOK, resp)
}
