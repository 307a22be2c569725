package alert

import (
	"fmt"
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusTriggered Status = "TRIGGERED"
)

// Alert watches one ticker for a price crossing.
type Alert struct {
	ID             string           `json:"id"`
	Ticker         string           `json:"ticker"`
	Direction      core.Direction   `json:"direction"`
	TargetPrice    decimal.Decimal  `json:"target_price"`
	Note           string           `json:"note,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	Status         Status           `json:"status"`
	TriggeredAt    *time.Time       `json:"triggered_at,omitempty"`
	TriggeredPrice *decimal.Decimal `json:"triggered_price,omitempty"`
}

// Crossed reports whether price satisfies the alert condition.
func (a Alert) Crossed(price decimal.Decimal) bool {
	switch a.Direction {
	case core.DirectionAbove:
		return price.GreaterThanOrEqual(a.TargetPrice)
	case core.DirectionBelow:
		return price.LessThanOrEqual(a.TargetPrice)
	}
	return false
}

// Event converts a triggered alert into a notification event.
func (a Alert) Event() core.AlertTriggered {
	ev := core.AlertTriggered{
		AlertID:     a.ID,
		Ticker:      a.Ticker,
		Direction:   a.Direction,
		TargetPrice: a.TargetPrice,
		Note:        a.Note,
	}
	if a.TriggeredAt != nil {
		ev.TriggeredAt = *a.TriggeredAt
	}
	if a.TriggeredPrice != nil {
		ev.Price = *a.TriggeredPrice
	}
	return ev
}

// Describe renders the condition, e.g. "AAPL ABOVE 200".
func (a Alert) Describe() string {
	return fmt.Sprintf("%s %s %s", a.Ticker, a.Direction, a.TargetPrice.String())
}

func (a Alert) validate() error {
	if a.ID == "" {
		return core.Errorf(core.ErrInvalidAlert, "missing id")
	}
	if a.Ticker == "" {
		return core.Errorf(core.ErrInvalidAlert, "ticker is required")
	}
	if _, ok := core.ParseDirection(string(a.Direction)); !ok {
		return core.Errorf(core.ErrInvalidAlert, "unknown direction %q", a.Direction)
	}
	if !a.TargetPrice.IsPositive() {
		return core.Errorf(core.ErrInvalidAlert, "target price must be positive, got %s", a.TargetPrice)
	}
	switch a.Status {
	case StatusActive:
	case StatusTriggered:
		if a.TriggeredAt == nil || a.TriggeredPrice == nil {
			return core.Errorf(core.ErrInvalidAlert, "triggered alert %s missing trigger details", a.ID)
		}
	default:
		return core.Errorf(core.ErrInvalidAlert, "unknown status %q", a.Status)
	}
	return nil
}

func (a *Alert) clone() Alert {
	c := *a
	if a.TriggeredAt != nil {
		t := *a.TriggeredAt
		c.TriggeredAt = &t
	}
	if a.TriggeredPrice != nil {
		p := *a.TriggeredPrice
		c.TriggeredPrice = &p
	}
	return c
}
