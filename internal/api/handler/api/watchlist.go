// internal/api/handler/api/watchlist.go
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/newthinker/paperdesk/internal/api/response"
	"github.com/newthinker/paperdesk/internal/core"
)

// WatchlistApp defines the interface needed from app.App.
type WatchlistApp interface {
	GetWatchlist() []string
	AddToWatchlist(ctx context.Context, ticker string) (bool, error)
	RemoveFromWatchlist(ctx context.Context, ticker string) (bool, error)
}

// WatchlistHandler handles watchlist API requests.
type WatchlistHandler struct {
	app WatchlistApp
}

// NewWatchlistHandler creates a new watchlist handler.
func NewWatchlistHandler(app WatchlistApp) *WatchlistHandler {
	return &WatchlistHandler{app: app}
}

// AddRequest is the request body for adding a ticker.
type AddRequest struct {
	Ticker string `json:"ticker"`
}

// List returns all tickers in the watchlist.
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	tickers := h.app.GetWatchlist()
	response.JSON(w, http.StatusOK, map[string]any{
		"tickers": tickers,
		"count":   len(tickers),
	})
}

// Add adds a ticker to the watchlist.
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrInvalidTicker, err))
		return
	}

	added, err := h.app.AddToWatchlist(r.Context(), req.Ticker)
	if err != nil && !committed(err) {
		response.Fail(w, err)
		return
	}

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	response.JSON(w, status, map[string]any{
		"ticker":    core.NormalizeTicker(req.Ticker),
		"added":     added,
		"persisted": err == nil,
	})
}

// Remove removes a ticker from the watchlist.
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request, ticker string) {
	removed, err := h.app.RemoveFromWatchlist(r.Context(), ticker)
	if err != nil && !committed(err) {
		response.Fail(w, err)
		return
	}
	if !removed {
		response.Error(w, http.StatusNotFound, core.ErrTickerNotFound)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"ticker":    core.NormalizeTicker(ticker),
		"removed":   true,
		"persisted": err == nil,
	})
}
