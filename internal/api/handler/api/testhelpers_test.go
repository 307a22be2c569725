package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/paperdesk/internal/api/response"
	"github.com/newthinker/paperdesk/internal/app"
	"github.com/newthinker/paperdesk/internal/collector/static"
	"github.com/newthinker/paperdesk/internal/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T, prices map[string]int64) (*app.App, *static.Static) {
	t.Helper()
	table := make(map[string]decimal.Decimal, len(prices))
	for ticker, p := range prices {
		table[ticker] = decimal.NewFromInt(p)
	}
	src := static.New(table)

	cfg := config.Defaults()
	cfg.Cache.TTL = time.Nanosecond
	a, err := app.New(cfg, src, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(a.Stop)
	if err := a.Load(context.Background()); err != nil {
		t.Fatalf("failed to load app: %v", err)
	}
	return a, src
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v: %s", err, w.Body.String())
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T", resp.Data)
	}
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorDetail {
	t.Helper()
	var resp response.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error: %v: %s", err, w.Body.String())
	}
	return resp.Error
}
