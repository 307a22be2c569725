package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/newthinker/paperdesk/internal/alert"
	"github.com/newthinker/paperdesk/internal/api/response"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
)

// AlertsApp defines the interface needed from app.App.
type AlertsApp interface {
	Alerts() *alert.Registry
	CreateAlert(ctx context.Context, ticker string, direction core.Direction, target decimal.Decimal, note string) (alert.Alert, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)
	ClearTriggered(ctx context.Context) (int, error)
	CheckAlerts(ctx context.Context) ([]alert.Alert, error)
}

// AlertsHandler handles alert API requests.
type AlertsHandler struct {
	app AlertsApp
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(app AlertsApp) *AlertsHandler {
	return &AlertsHandler{app: app}
}

// CreateAlertRequest is the request body for creating an alert.
type CreateAlertRequest struct {
	Ticker      string          `json:"ticker"`
	Direction   string          `json:"direction"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Note        string          `json:"note,omitempty"`
}

// List returns alerts, optionally filtered with ?status=active|triggered.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	reg := h.app.Alerts()

	var alerts []alert.Alert
	switch status := r.URL.Query().Get("status"); status {
	case "":
		alerts = reg.List()
	case "active":
		alerts = reg.Active()
	case "triggered":
		alerts = reg.Triggered()
	default:
		response.Error(w, http.StatusBadRequest,
			core.Errorf(core.ErrInvalidAlert, "unknown status %q", status))
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Get returns one alert.
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	a, err := h.app.Alerts().Get(id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}

// Create registers a new alert.
func (h *AlertsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrInvalidAlert, err))
		return
	}

	dir, ok := core.ParseDirection(req.Direction)
	if !ok {
		response.Error(w, http.StatusBadRequest,
			core.Errorf(core.ErrInvalidAlert, "direction must be ABOVE or BELOW, got %q", req.Direction))
		return
	}

	a, err := h.app.CreateAlert(r.Context(), req.Ticker, dir, req.TargetPrice, req.Note)
	if err != nil && !committed(err) {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{
		"alert":     a,
		"persisted": err == nil,
	})
}

// Delete removes an alert.
func (h *AlertsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := h.app.DeleteAlert(r.Context(), id)
	if err != nil && !committed(err) {
		response.Fail(w, err)
		return
	}
	if !deleted {
		response.Error(w, http.StatusNotFound, core.ErrAlertNotFound)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"deleted":   true,
		"persisted": err == nil,
	})
}

// Check evaluates active alerts against current quotes.
func (h *AlertsHandler) Check(w http.ResponseWriter, r *http.Request) {
	fired, err := h.app.CheckAlerts(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	if fired == nil {
		fired = []alert.Alert{}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"triggered": fired,
		"count":     len(fired),
	})
}

// ClearTriggered removes every triggered alert.
func (h *AlertsHandler) ClearTriggered(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.ClearTriggered(r.Context())
	if err != nil && !committed(err) {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"cleared":   n,
		"persisted": err == nil,
	})
}
