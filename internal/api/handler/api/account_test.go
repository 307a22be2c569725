package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountHandler_Get(t *testing.T) {
	a, _ := newTestApp(t, nil)
	handler := NewAccountHandler(a)

	w := httptest.NewRecorder()
	handler.Get(w, httptest.NewRequest("GET", "/api/account", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "100000", data["cash"])
	assert.Equal(t, "100000", data["equity"])
}

func TestAccountHandler_PlaceOrder(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150})
	handler := NewAccountHandler(a)

	body := bytes.NewBufferString(`{"side": "buy", "ticker": "aapl", "quantity": 10}`)
	w := httptest.NewRecorder()
	handler.PlaceOrder(w, httptest.NewRequest("POST", "/api/orders", body))

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["persisted"])

	trade := data["trade"].(map[string]any)
	assert.Equal(t, "AAPL", trade["ticker"])
	assert.Equal(t, "BUY", trade["side"])
	assert.Equal(t, "1500", trade["total"])
	assert.Equal(t, "98500", a.Ledger().Cash().String())
}

func TestAccountHandler_PlaceOrder_Errors(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150})
	handler := NewAccountHandler(a)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad json", `{`, http.StatusBadRequest, "INVALID_ORDER"},
		{"bad side", `{"side": "short", "ticker": "AAPL", "quantity": 1}`, http.StatusBadRequest, "INVALID_ORDER"},
		{"zero quantity", `{"side": "BUY", "ticker": "AAPL", "quantity": 0}`, http.StatusBadRequest, "INVALID_ORDER"},
		{"insufficient funds", `{"side": "BUY", "ticker": "AAPL", "quantity": 10000}`, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"insufficient shares", `{"side": "SELL", "ticker": "AAPL", "quantity": 1}`, http.StatusUnprocessableEntity, "INSUFFICIENT_SHARES"},
		{"no price", `{"side": "BUY", "ticker": "XYZ", "quantity": 1}`, http.StatusServiceUnavailable, "PRICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.PlaceOrder(w, httptest.NewRequest("POST", "/api/orders", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
	assert.Empty(t, a.Trades())
}

func TestAccountHandler_Trades(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150, "MSFT": 300})
	ctx := context.Background()
	_, err := a.PlaceOrder(ctx, core.SideBuy, "AAPL", 1)
	require.NoError(t, err)
	_, err = a.PlaceOrder(ctx, core.SideBuy, "MSFT", 1)
	require.NoError(t, err)

	handler := NewAccountHandler(a)

	w := httptest.NewRecorder()
	handler.Trades(w, httptest.NewRequest("GET", "/api/trades?limit=1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.EqualValues(t, 1, data["count"])
	assert.EqualValues(t, 2, data["total"])
	newest := data["trades"].([]any)[0].(map[string]any)
	assert.Equal(t, "MSFT", newest["ticker"])

	w = httptest.NewRecorder()
	handler.Trades(w, httptest.NewRequest("GET", "/api/trades?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountHandler_Export(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150})
	_, err := a.PlaceOrder(context.Background(), core.SideBuy, "AAPL", 2)
	require.NoError(t, err)

	handler := NewAccountHandler(a)
	handler.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	w := httptest.NewRecorder()
	handler.Export(w, httptest.NewRequest("GET", "/api/trades/export", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="trades-20240301-093000.csv"`, w.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "AAPL")
}

func TestAccountHandler_Reset(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150})
	_, err := a.PlaceOrder(context.Background(), core.SideBuy, "AAPL", 2)
	require.NoError(t, err)

	handler := NewAccountHandler(a)

	w := httptest.NewRecorder()
	handler.Reset(w, httptest.NewRequest("POST", "/api/account/reset", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "RESET_NOT_CONFIRMED", decodeError(t, w).Code)
	assert.Len(t, a.Trades(), 1)

	w = httptest.NewRecorder()
	handler.Reset(w, httptest.NewRequest("POST", "/api/account/reset", bytes.NewBufferString(`{"confirm": true}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, a.Trades())
	assert.Equal(t, "100000", a.Ledger().Cash().String())
}
