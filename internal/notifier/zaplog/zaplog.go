// Package zaplog implements a notifier that writes alert events to the
// application log.
package zaplog

import (
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/notifier"
	"go.uber.org/zap"
)

// Log implements the Notifier interface on top of a zap logger.
type Log struct {
	logger *zap.Logger
}

// New creates a log notifier.
func New(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("alerts")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Init(cfg notifier.Config) error { return nil }

func (l *Log) Notify(event core.AlertTriggered) error {
	l.logger.Info(notifier.Summary(event),
		zap.String("alert_id", event.AlertID),
		zap.String("ticker", event.Ticker),
		zap.String("direction", string(event.Direction)),
		zap.String("target_price", event.TargetPrice.String()),
		zap.String("price", event.Price.String()),
		zap.Time("triggered_at", event.TriggeredAt.UTC().Truncate(time.Second)),
	)
	return nil
}

func (l *Log) NotifyBatch(events []core.AlertTriggered) error {
	for _, ev := range events {
		l.Notify(ev)
	}
	return nil
}
