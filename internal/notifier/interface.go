package notifier

import (
	"fmt"

	"github.com/newthinker/paperdesk/internal/core"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier delivers alert trigger events
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Notify delivers a single trigger event
	Notify(event core.AlertTriggered) error

	// NotifyBatch delivers several trigger events from one evaluation
	NotifyBatch(events []core.AlertTriggered) error
}

// Summary renders an event as one human-readable line.
func Summary(ev core.AlertTriggered) string {
	verb := "rose to"
	if ev.Direction == core.DirectionBelow {
		verb = "fell to"
	}
	s := fmt.Sprintf("%s %s %s (target %s %s)",
		ev.Ticker, verb, ev.Price.StringFixed(2), ev.Direction, ev.TargetPrice.StringFixed(2))
	if ev.Note != "" {
		s += ": " + ev.Note
	}
	return s
}
