package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertsHandler_Create(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150})
	handler := NewAlertsHandler(a)

	body := bytes.NewBufferString(`{"ticker": "aapl", "direction": "above", "target_price": "155.5", "note": "breakout"}`)
	w := httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest("POST", "/api/alerts", body))

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["persisted"])

	alert := data["alert"].(map[string]any)
	assert.Equal(t, "AAPL", alert["ticker"])
	assert.Equal(t, "ABOVE", alert["direction"])
	assert.Equal(t, "155.5", alert["target_price"])
	assert.Equal(t, "ACTIVE", alert["status"])
	assert.Equal(t, 1, a.Alerts().Len())
}

func TestAlertsHandler_Create_Invalid(t *testing.T) {
	a, _ := newTestApp(t, nil)
	handler := NewAlertsHandler(a)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad direction", `{"ticker": "AAPL", "direction": "sideways", "target_price": "10"}`},
		{"zero target", `{"ticker": "AAPL", "direction": "BELOW", "target_price": "0"}`},
		{"empty ticker", `{"ticker": "", "direction": "BELOW", "target_price": "10"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Create(w, httptest.NewRequest("POST", "/api/alerts", bytes.NewBufferString(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_ALERT", decodeError(t, w).Code)
		})
	}
	assert.Equal(t, 0, a.Alerts().Len())
}

func TestAlertsHandler_ListAndFilter(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150})
	ctx := context.Background()
	_, err := a.CreateAlert(ctx, "AAPL", core.DirectionAbove, decimal.NewFromInt(140), "")
	require.NoError(t, err)
	_, err = a.CreateAlert(ctx, "AAPL", core.DirectionAbove, decimal.NewFromInt(200), "")
	require.NoError(t, err)
	_, err = a.CheckAlerts(ctx)
	require.NoError(t, err)

	handler := NewAlertsHandler(a)

	tests := []struct {
		query string
		count int
	}{
		{"", 2},
		{"?status=active", 1},
		{"?status=triggered", 1},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		handler.List(w, httptest.NewRequest("GET", "/api/alerts"+tt.query, nil))

		require.Equal(t, http.StatusOK, w.Code, tt.query)
		assert.EqualValues(t, tt.count, decodeData(t, w)["count"], tt.query)
	}

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/api/alerts?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertsHandler_GetAndDelete(t *testing.T) {
	a, _ := newTestApp(t, nil)
	created, err := a.CreateAlert(context.Background(), "MSFT", core.DirectionBelow, decimal.NewFromInt(250), "")
	require.NoError(t, err)

	handler := NewAlertsHandler(a)

	w := httptest.NewRecorder()
	handler.Get(w, httptest.NewRequest("GET", "/api/alerts/"+created.ID, nil), created.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeData(t, w)["id"])

	w = httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest("DELETE", "/api/alerts/"+created.ID, nil), created.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["deleted"])

	w = httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest("DELETE", "/api/alerts/"+created.ID, nil), created.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.Get(w, httptest.NewRequest("GET", "/api/alerts/"+created.ID, nil), created.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ALERT_NOT_FOUND", decodeError(t, w).Code)
}

func TestAlertsHandler_CheckAndClear(t *testing.T) {
	a, _ := newTestApp(t, map[string]int64{"AAPL": 150})
	_, err := a.CreateAlert(context.Background(), "AAPL", core.DirectionBelow, decimal.NewFromInt(160), "")
	require.NoError(t, err)

	handler := NewAlertsHandler(a)

	w := httptest.NewRecorder()
	handler.Check(w, httptest.NewRequest("POST", "/api/alerts/check", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeData(t, w)["count"])

	// a triggered alert never fires again
	w = httptest.NewRecorder()
	handler.Check(w, httptest.NewRequest("POST", "/api/alerts/check", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.EqualValues(t, 0, data["count"])
	assert.Equal(t, []any{}, data["triggered"])

	w = httptest.NewRecorder()
	handler.ClearTriggered(w, httptest.NewRequest("POST", "/api/alerts/clear-triggered", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeData(t, w)["cleared"])
	assert.Equal(t, 0, a.Alerts().Len())
}
