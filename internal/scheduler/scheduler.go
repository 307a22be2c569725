// Package scheduler runs the periodic refresh cycle on a cron entry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Intervals are the refresh periods a scheduler accepts.
var Intervals = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// ValidInterval reports whether d is one of Intervals.
func ValidInterval(d time.Duration) bool {
	for _, allowed := range Intervals {
		if d == allowed {
			return true
		}
	}
	return false
}

// ErrStopped is returned by RunNow after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Job is one refresh cycle.
type Job func(ctx context.Context) error

// Status describes the scheduler for display.
type Status struct {
	Enabled      bool          `json:"enabled"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Runs         uint64        `json:"runs"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
}

// Scheduler triggers a Job every interval while enabled. Cycles never
// overlap: a tick that finds a cycle in flight is skipped, RunNow waits.
type Scheduler struct {
	job    Job
	logger *zap.Logger
	cron   *cron.Cron

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	entry    cron.EntryID
	running  bool
	runs     uint64
	lastRun  time.Time
	lastDur  time.Duration
	lastErr  error

	runMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a disabled scheduler with the given interval.
func New(job Job, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if !ValidInterval(interval) {
		return nil, core.Errorf(core.ErrInvalidInterval, "%s not in %v", interval, Intervals)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")

	cl := cronLogger{s: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		job:      job,
		logger:   logger,
		interval: interval,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	s.cron.Start()
	return s, nil
}

// Enable starts periodic cycles. It is a no-op when already enabled.
func (s *Scheduler) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return ErrStopped
	}
	if s.enabled {
		return nil
	}
	if err := s.schedule(); err != nil {
		return err
	}
	s.enabled = true
	s.logger.Info("refresh enabled", zap.Duration("interval", s.interval))
	return nil
}

// Disable stops periodic cycles. A cycle already running completes.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}
	s.cron.Remove(s.entry)
	s.entry = 0
	s.enabled = false
	s.logger.Info("refresh disabled")
}

// SetInterval changes the refresh period, rescheduling when enabled.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if !ValidInterval(d) {
		return core.Errorf(core.ErrInvalidInterval, "%s not in %v", d, Intervals)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d == s.interval {
		return nil
	}
	s.interval = d
	if s.enabled {
		s.cron.Remove(s.entry)
		if err := s.schedule(); err != nil {
			s.enabled = false
			return err
		}
	}
	s.logger.Info("refresh interval changed", zap.Duration("interval", d))
	return nil
}

// schedule adds the cron entry for the current interval. Callers hold mu.
func (s *Scheduler) schedule() error {
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick)
	if err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	s.entry = id
	return nil
}

// Interval returns the current refresh period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Enabled reports whether periodic cycles are on.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Status returns the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:      s.enabled,
		Interval:     s.interval,
		Running:      s.running,
		Runs:         s.runs,
		LastRun:      s.lastRun,
		LastDuration: s.lastDur,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.enabled {
		st.NextRun = s.cron.Entry(s.entry).Next
	}
	return st
}

// RunNow runs one cycle immediately, waiting for any cycle in flight.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.ctx.Err() != nil {
		return ErrStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	return s.run(ctx)
}

// Stop disables the scheduler, cancels the in-flight cycle and waits for it.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.Disable()
		s.cancel()
		<-s.cron.Stop().Done()
		s.runMu.Lock()
		s.runMu.Unlock()
		s.logger.Info("scheduler stopped")
	})
}

func (s *Scheduler) tick() {
	if !s.runMu.TryLock() {
		s.logger.Debug("refresh cycle still running, skipping tick")
		return
	}
	defer s.runMu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	_ = s.run(s.ctx)
}

// run executes the job. Callers hold runMu.
func (s *Scheduler) run(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	err := s.job(ctx)
	dur := time.Since(start)

	s.mu.Lock()
	s.running = false
	s.runs++
	s.lastRun = start.UTC()
	s.lastDur = dur
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("refresh cycle failed", zap.Error(err), zap.Duration("duration", dur))
	} else {
		s.logger.Debug("refresh cycle completed", zap.Duration("duration", dur))
	}
	return err
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
