package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/newthinker/paperdesk/internal/api/response"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/pricecache"
)

// QuotesApp defines the interface needed from app.App.
type QuotesApp interface {
	Quotes(ctx context.Context, tickers []string) map[string]pricecache.Result
	ForceRefresh(ctx context.Context, ticker string) pricecache.Result
}

// QuoteView is one ticker's lookup result.
type QuoteView struct {
	Ticker string      `json:"ticker"`
	Quote  *core.Quote `json:"quote,omitempty"`
	Stale  bool        `json:"stale"`
	Error  string      `json:"error,omitempty"`
}

func newQuoteView(ticker string, r pricecache.Result) QuoteView {
	v := QuoteView{Ticker: ticker, Stale: r.Stale}
	if r.Err != nil {
		v.Error = r.Err.Error()
		return v
	}
	q := r.Quote
	v.Quote = &q
	return v
}

// QuotesHandler handles quote API requests.
type QuotesHandler struct {
	app QuotesApp
}

// NewQuotesHandler creates a new quotes handler.
func NewQuotesHandler(app QuotesApp) *QuotesHandler {
	return &QuotesHandler{app: app}
}

// List returns quotes for ?tickers=A,B or the watchlist.
func (h *QuotesHandler) List(w http.ResponseWriter, r *http.Request) {
	results := h.app.Quotes(r.Context(), splitTickers(r.URL.Query().Get("tickers")))

	tickers := make([]string, 0, len(results))
	for t := range results {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	quotes := make([]QuoteView, 0, len(tickers))
	for _, t := range tickers {
		quotes = append(quotes, newQuoteView(t, results[t]))
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"quotes": quotes,
		"count":  len(quotes),
	})
}

// Refresh discards the cached quote for ticker and fetches it again.
func (h *QuotesHandler) Refresh(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = core.NormalizeTicker(ticker)
	res := h.app.ForceRefresh(r.Context(), ticker)
	if res.Err != nil {
		response.Fail(w, res.Err)
		return
	}
	response.JSON(w, http.StatusOK, newQuoteView(ticker, res))
}
