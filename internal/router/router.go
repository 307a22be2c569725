// Package router delivers alert trigger events to the registered notifiers.
package router

import (
	"sync"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/notifier"
	"go.uber.org/zap"
)

// Recorder receives one delivery outcome per notifier and route.
type Recorder interface {
	RecordNotification(notifier, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string, string) {}

// Router fans trigger events out to every notifier in the background.
// Delivery failures are logged and counted, never returned to the caller.
type Router struct {
	registry *notifier.Registry
	logger   *zap.Logger

	mu       sync.RWMutex
	recorder Recorder
	routed   uint64
	failures uint64

	wg sync.WaitGroup
}

// New creates a new router over registry.
func New(registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = notifier.NewRegistry()
	}
	return &Router{
		registry: registry,
		logger:   logger,
		recorder: nopRecorder{},
	}
}

// SetRecorder routes delivery outcomes to rec.
func (r *Router) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	r.mu.Lock()
	r.recorder = rec
	r.mu.Unlock()
}

// Registry returns the notifier registry the router delivers to.
func (r *Router) Registry() *notifier.Registry {
	return r.registry
}

// Route delivers events without blocking. A single event goes through
// Notify, several events from one evaluation through NotifyBatch.
func (r *Router) Route(events []core.AlertTriggered) {
	if len(events) == 0 || r.registry.Len() == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.deliver(events)
	}()
}

func (r *Router) deliver(events []core.AlertTriggered) {
	var errs map[string]error
	if len(events) == 1 {
		errs = r.registry.NotifyAll(events[0])
	} else {
		errs = r.registry.NotifyAllBatch(events)
	}

	r.mu.Lock()
	r.routed += uint64(len(events))
	r.failures += uint64(len(errs))
	rec := r.recorder
	r.mu.Unlock()

	for _, n := range r.registry.GetAll() {
		status := "ok"
		if err, failed := errs[n.Name()]; failed {
			status = "failed"
			r.logger.Warn("notification failed",
				zap.String("notifier", n.Name()),
				zap.Int("events", len(events)),
				zap.Error(err),
			)
		}
		rec.RecordNotification(n.Name(), status)
	}

	r.logger.Debug("events routed",
		zap.Int("events", len(events)),
		zap.Int("notifiers", r.registry.Len()),
		zap.Int("errors", len(errs)),
	)
}

// Wait blocks until every routed delivery has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]any{
		"notifiers": r.registry.Len(),
		"routed":    r.routed,
		"failures":  r.failures,
	}
}
