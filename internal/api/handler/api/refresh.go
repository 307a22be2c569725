package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/newthinker/paperdesk/internal/api/response"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/scheduler"
)

// RefreshApp defines the interface needed from app.App.
type RefreshApp interface {
	RefreshStatus() scheduler.Status
	ConfigureRefresh(enabled *bool, interval time.Duration) (scheduler.Status, error)
	RunRefresh(ctx context.Context) error
}

// RefreshHandler handles refresh settings API requests.
type RefreshHandler struct {
	app RefreshApp
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(app RefreshApp) *RefreshHandler {
	return &RefreshHandler{app: app}
}

// RefreshRequest changes the refresh settings. Omitted fields are unchanged.
type RefreshRequest struct {
	Enabled         *bool `json:"enabled,omitempty"`
	IntervalSeconds int   `json:"interval_seconds,omitempty"`
}

// RefreshView is the refresh state returned to clients.
type RefreshView struct {
	Enabled         bool       `json:"enabled"`
	IntervalSeconds int        `json:"interval_seconds"`
	AllowedSeconds  []int      `json:"allowed_seconds"`
	Running         bool       `json:"running"`
	Runs            uint64     `json:"runs"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastDurationMS  int64      `json:"last_duration_ms"`
	LastError       string     `json:"last_error,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

func newRefreshView(st scheduler.Status) RefreshView {
	v := RefreshView{
		Enabled:         st.Enabled,
		IntervalSeconds: int(st.Interval / time.Second),
		Running:         st.Running,
		Runs:            st.Runs,
		LastDurationMS:  st.LastDuration.Milliseconds(),
		LastError:       st.LastError,
	}
	for _, d := range scheduler.Intervals {
		v.AllowedSeconds = append(v.AllowedSeconds, int(d/time.Second))
	}
	if !st.LastRun.IsZero() {
		t := st.LastRun
		v.LastRun = &t
	}
	if !st.NextRun.IsZero() {
		t := st.NextRun.UTC()
		v.NextRun = &t
	}
	return v
}

// Get returns the refresh settings.
func (h *RefreshHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, newRefreshView(h.app.RefreshStatus()))
}

// Update toggles the refresh and changes its interval.
func (h *RefreshHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrInvalidInterval, err))
		return
	}

	st, err := h.app.ConfigureRefresh(req.Enabled, time.Duration(req.IntervalSeconds)*time.Second)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, newRefreshView(st))
}

// Run performs one refresh cycle now.
func (h *RefreshHandler) Run(w http.ResponseWriter, r *http.Request) {
	if err := h.app.RunRefresh(r.Context()); err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, newRefreshView(h.app.RefreshStatus()))
}
