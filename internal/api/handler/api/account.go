package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/paperdesk/internal/api/response"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/ledger"
)

// AccountApp defines the interface needed from app.App.
type AccountApp interface {
	Valuation(ctx context.Context) ledger.Valuation
	PlaceOrder(ctx context.Context, side core.Side, ticker string, quantity int64) (ledger.Trade, error)
	ResetAccount(ctx context.Context, confirmed bool) error
	Trades() []ledger.Trade
	ExportTrades(w io.Writer) error
}

// AccountHandler handles account, order and trade API requests.
type AccountHandler struct {
	app AccountApp
	now func() time.Time
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(app AccountApp) *AccountHandler {
	return &AccountHandler{app: app, now: time.Now}
}

// OrderRequest is the request body for placing an order.
type OrderRequest struct {
	Side     string `json:"side"`
	Ticker   string `json:"ticker"`
	Quantity int64  `json:"quantity"`
}

// ResetRequest is the request body for resetting the account.
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

// Get returns the account valued at current prices.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.app.Valuation(r.Context()))
}

// PlaceOrder executes a market order.
func (h *AccountHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrInvalidOrder, err))
		return
	}

	side, ok := core.ParseSide(req.Side)
	if !ok {
		response.Error(w, http.StatusBadRequest,
			core.Errorf(core.ErrInvalidOrder, "side must be BUY or SELL, got %q", req.Side))
		return
	}

	trade, err := h.app.PlaceOrder(r.Context(), side, req.Ticker, req.Quantity)
	if err != nil && !committed(err) {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{
		"trade":     trade,
		"persisted": err == nil,
	})
}

// Trades returns the trade history, newest first, limited by ?limit=N.
func (h *AccountHandler) Trades(w http.ResponseWriter, r *http.Request) {
	trades := h.app.Trades()

	limit := len(trades)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest,
				core.Errorf(core.ErrInvalidOrder, "invalid limit %q", s))
			return
		}
		limit = min(n, len(trades))
	}

	out := make([]ledger.Trade, 0, limit)
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, trades[i])
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"trades": out,
		"count":  len(out),
		"total":  len(trades),
	})
}

// Export streams the trade history as CSV in execution order.
func (h *AccountHandler) Export(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("trades-%s.csv", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	// headers are sent; a write failure can only be logged by the server
	_ = h.app.ExportTrades(w)
}

// Reset wipes the account. The body must carry {"confirm": true}.
func (h *AccountHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrResetNotConfirmed, err))
		return
	}

	err := h.app.ResetAccount(r.Context(), req.Confirm)
	if err != nil && !committed(err) {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"reset":     true,
		"persisted": err == nil,
	})
}
