// Package alert keeps price alerts and detects when they fire.
package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
)

// Registry holds all alerts. A single mutex serializes create, delete and
// evaluate so an alert can never be reported as triggered twice.
type Registry struct {
	alerts map[string]*Alert
	// insertion order, kept for stable listings and snapshots
	order []string

	// For testing: allow time advancement
	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// NewRegistry creates an empty alert registry.
func NewRegistry() *Registry {
	return &Registry{
		alerts: make(map[string]*Alert),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create registers a new ACTIVE alert.
func (r *Registry) Create(ticker string, direction core.Direction, target decimal.Decimal, note string) (Alert, error) {
	ticker = core.NormalizeTicker(ticker)
	if ticker == "" {
		return Alert{}, core.Errorf(core.ErrInvalidAlert, "ticker is required")
	}
	dir, ok := core.ParseDirection(string(direction))
	if !ok {
		return Alert{}, core.Errorf(core.ErrInvalidAlert, "direction must be ABOVE or BELOW, got %q", direction)
	}
	if !target.IsPositive() {
		return Alert{}, core.Errorf(core.ErrInvalidAlert, "target price must be positive, got %s", target)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a := &Alert{
		ID:          r.newID(),
		Ticker:      ticker,
		Direction:   dir,
		TargetPrice: target,
		Note:        note,
		CreatedAt:   r.now().UTC(),
		Status:      StatusActive,
	}
	r.alerts[a.ID] = a
	r.order = append(r.order, a.ID)
	return a.clone(), nil
}

// Evaluate checks ACTIVE alerts against quotes and returns those that fired
// in this call. Alerts whose ticker has no quote are skipped. A returned
// alert is TRIGGERED and will never be returned again.
func (r *Registry) Evaluate(quotes map[string]core.Quote) []Alert {
	if len(quotes) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var fired []Alert
	now := r.now().UTC()
	for _, id := range r.order {
		a := r.alerts[id]
		if a.Status != StatusActive {
			continue
		}
		q, ok := quotes[a.Ticker]
		if !ok || !q.Price.IsPositive() {
			continue
		}
		if !a.Crossed(q.Price) {
			continue
		}
		price := q.Price
		at := now
		a.Status = StatusTriggered
		a.TriggeredAt = &at
		a.TriggeredPrice = &price
		fired = append(fired, a.clone())
	}
	return fired
}

// Delete removes an alert. Deleting an unknown id is a no-op and reports false.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[id]; !ok {
		return false
	}
	delete(r.alerts, id)
	r.order = removeID(r.order, id)
	return true
}

// ClearTriggered removes all TRIGGERED alerts and returns how many were removed.
func (r *Registry) ClearTriggered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		if r.alerts[id].Status == StatusTriggered {
			delete(r.alerts, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// Get returns one alert by id.
func (r *Registry) Get(id string) (Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, core.Errorf(core.ErrAlertNotFound, "id %s", id)
	}
	return a.clone(), nil
}

// List returns all alerts in creation order.
func (r *Registry) List() []Alert {
	return r.filter(func(*Alert) bool { return true })
}

// Active returns alerts still waiting to fire.
func (r *Registry) Active() []Alert {
	return r.filter(func(a *Alert) bool { return a.Status == StatusActive })
}

// Triggered returns alerts that have fired.
func (r *Registry) Triggered() []Alert {
	return r.filter(func(a *Alert) bool { return a.Status == StatusTriggered })
}

// Tickers returns the distinct tickers of ACTIVE alerts, sorted.
func (r *Registry) Tickers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	for _, a := range r.alerts {
		if a.Status == StatusActive {
			seen[a.Ticker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of alerts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// Snapshot is the persisted form of the registry.
type Snapshot struct {
	Alerts []Alert `json:"alerts"`
}

// Snapshot copies all alerts in creation order.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{Alerts: r.List()}
}

// Restore replaces the registry contents with s. Nothing changes if any
// alert in s is invalid.
func (r *Registry) Restore(s Snapshot) error {
	alerts := make(map[string]*Alert, len(s.Alerts))
	order := make([]string, 0, len(s.Alerts))
	for i := range s.Alerts {
		a := s.Alerts[i].clone()
		a.Ticker = core.NormalizeTicker(a.Ticker)
		a.CreatedAt = a.CreatedAt.UTC()
		if a.TriggeredAt != nil {
			t := a.TriggeredAt.UTC()
			a.TriggeredAt = &t
		}
		if err := a.validate(); err != nil {
			return err
		}
		if _, dup := alerts[a.ID]; dup {
			return core.Errorf(core.ErrInvalidAlert, "duplicate id %s", a.ID)
		}
		alerts[a.ID] = &a
		order = append(order, a.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = alerts
	r.order = order
	return nil
}

func (r *Registry) filter(keep func(*Alert) bool) []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Alert, 0, len(r.order))
	for _, id := range r.order {
		if a := r.alerts[id]; keep(a) {
			out = append(out, a.clone())
		}
	}
	return out
}

// advanceTime is for testing - advances the internal clock.
func (r *Registry) advanceTime(d time.Duration) {
	oldNow := r.now
	r.now = func() time.Time {
		return oldNow().Add(d)
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
