package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/paperdesk/internal/alert"
	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/config"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/ledger"
	"github.com/newthinker/paperdesk/internal/notifier"
	"github.com/newthinker/paperdesk/internal/pricecache"
	"github.com/newthinker/paperdesk/internal/router"
	"github.com/newthinker/paperdesk/internal/scheduler"
	"github.com/newthinker/paperdesk/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Storage keys of the persisted state.
const (
	KeyAccount   = "account"
	KeyAlerts    = "alerts"
	KeyWatchlist = "watchlist"
)

// Metrics receives application events. *metrics.Registry implements it.
type Metrics interface {
	pricecache.Metrics
	RecordAlertCreated()
	RecordAlertsTriggered(n int)
	RecordOrder(side, outcome string)
	RecordRefreshCycle(status string, duration float64)
	SetAccount(equity, cash float64)
	RecordNotification(notifier, status string)
	SetWatchlistSize(size int)
}

type nopMetrics struct{}

func (nopMetrics) CacheHit()                                   {}
func (nopMetrics) CacheMiss()                                  {}
func (nopMetrics) CacheStale()                                 {}
func (nopMetrics) SourceFetch(string, int, int, time.Duration) {}
func (nopMetrics) RecordAlertCreated()                         {}
func (nopMetrics) RecordAlertsTriggered(int)                   {}
func (nopMetrics) RecordOrder(string, string)                  {}
func (nopMetrics) RecordRefreshCycle(string, float64)          {}
func (nopMetrics) SetAccount(float64, float64)                 {}
func (nopMetrics) RecordNotification(string, string)           {}
func (nopMetrics) SetWatchlistSize(int)                        {}

// watchlistState is the persisted form of the watchlist.
type watchlistState struct {
	Tickers  []string `json:"tickers"`
	Revision uint64   `json:"revision"`
}

// App is the main application orchestrator. It owns the price cache, the
// alert registry and the ledger, drives the refresh cycle and persists state
// after every committed change.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    collector.Source
	cache     *pricecache.Cache
	alerts    *alert.Registry
	ledger    *ledger.Ledger
	router    *router.Router
	persister *storage.Persister
	scheduler *scheduler.Scheduler
	metrics   Metrics

	mu        sync.RWMutex
	watchlist []string
	watchRev  uint64
	valuation *ledger.Valuation

	// valFloor is the oldest ledger revision a stored valuation may describe.
	valFloor uint64
}

// New creates a new App instance. A nil persister keeps state in memory.
func New(cfg *config.Config, source collector.Source, persister *storage.Persister, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	if source == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "price source is required")
	}
	if persister == nil {
		persister = storage.NewPersister(storage.NewMemory(), storage.JSON{}, logger)
	}

	cache := pricecache.New(source, pricecache.Config{
		TTL:          cfg.Cache.TTL,
		FetchTimeout: cfg.Cache.FetchTimeout,
	}, logger)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		source:    source,
		cache:     cache,
		alerts:    alert.NewRegistry(),
		ledger:    ledger.New(cache, cfg.Account.Balance(), logger),
		router:    router.New(notifier.NewRegistry(), logger),
		persister: persister,
		metrics:   nopMetrics{},
		watchlist: []string{},
	}

	sched, err := scheduler.New(a.RefreshCycle, cfg.Refresh.Interval, logger)
	if err != nil {
		return nil, err
	}
	a.scheduler = sched
	return a, nil
}

// SetMetrics routes cache and application events to m.
func (a *App) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	a.metrics = m
	a.cache.SetMetrics(m)
	a.router.SetRecorder(m)
}

// RegisterNotifier adds a notifier to the app
func (a *App) RegisterNotifier(n notifier.Notifier) error {
	return a.router.Registry().Register(n)
}

// Cache returns the price cache.
func (a *App) Cache() *pricecache.Cache { return a.cache }

// Alerts returns the alert registry for reads. Mutate through App.
func (a *App) Alerts() *alert.Registry { return a.alerts }

// Ledger returns the ledger for reads. Mutate through App.
func (a *App) Ledger() *ledger.Ledger { return a.ledger }

// Scheduler returns the refresh scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Load restores the account, alerts and watchlist from the store, creating
// and saving fresh state for keys that are missing.
func (a *App) Load(ctx context.Context) error {
	var acct ledger.Account
	found, err := a.persister.Load(ctx, KeyAccount, &acct)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if found {
		if err := a.ledger.Restore(acct); err != nil {
			return fmt.Errorf("restoring account: %w", err)
		}
	} else if err := a.saveAccount(ctx); err != nil {
		return err
	}

	var snap alert.Snapshot
	found, err = a.persister.Load(ctx, KeyAlerts, &snap)
	if err != nil {
		return fmt.Errorf("loading alerts: %w", err)
	}
	if found {
		if err := a.alerts.Restore(snap); err != nil {
			return fmt.Errorf("restoring alerts: %w", err)
		}
	}

	var wl watchlistState
	found, err = a.persister.Load(ctx, KeyWatchlist, &wl)
	if err != nil {
		return fmt.Errorf("loading watchlist: %w", err)
	}
	a.mu.Lock()
	if found {
		a.watchlist = normalizeTickers(wl.Tickers)
		a.watchRev = wl.Revision
	} else {
		a.watchlist = normalizeTickers(a.cfg.Watchlist)
		a.watchRev++
	}
	size := len(a.watchlist)
	a.mu.Unlock()
	if !found {
		if err := a.saveWatchlist(ctx); err != nil {
			return err
		}
	}
	a.metrics.SetWatchlistSize(size)

	a.logger.Info("state loaded",
		zap.String("store", a.persister.Store().Name()),
		zap.Uint64("account_revision", a.ledger.Revision()),
		zap.Int("alerts", a.alerts.Len()),
		zap.Int("watchlist", size),
	)
	return nil
}

// Start enables the periodic refresh when configured.
func (a *App) Start() error {
	a.logger.Info("paperdesk starting",
		zap.String("source", a.source.Name()),
		zap.Bool("refresh", a.cfg.Refresh.Enabled),
		zap.Duration("interval", a.scheduler.Interval()),
	)
	if a.cfg.Refresh.Enabled {
		return a.scheduler.Enable()
	}
	return nil
}

// Stop cancels the refresh cycle and waits for pending notifications.
func (a *App) Stop() {
	a.scheduler.Stop()
	a.router.Wait()
}

// Close releases the store.
func (a *App) Close() error {
	return a.persister.Close()
}

// RefreshCycle fetches quotes for every tracked ticker, evaluates alerts on
// the fresh ones and revalues the account. A cancelled ctx drops the batch.
func (a *App) RefreshCycle(ctx context.Context) error {
	start := time.Now()
	tickers := a.trackedTickers()
	if len(tickers) == 0 {
		a.logger.Debug("nothing to refresh")
		a.metrics.RecordRefreshCycle("empty", time.Since(start).Seconds())
		return nil
	}

	results := a.cache.LookupMany(ctx, tickers)
	if err := ctx.Err(); err != nil {
		a.logger.Debug("refresh cycle cancelled, dropping batch", zap.Int("tickers", len(tickers)))
		a.metrics.RecordRefreshCycle("cancelled", time.Since(start).Seconds())
		return err
	}

	fired := a.evaluate(ctx, results)
	a.revalue(results)

	available := pricecache.Quotes(results)
	if len(available) == 0 {
		a.metrics.RecordRefreshCycle("failed", time.Since(start).Seconds())
		return core.Errorf(core.ErrNotAvailable, "no quotes for %d tickers", len(tickers))
	}

	a.logger.Debug("refresh cycle completed",
		zap.Int("tickers", len(tickers)),
		zap.Int("quoted", len(available)),
		zap.Int("triggered", len(fired)),
	)
	a.metrics.RecordRefreshCycle("ok", time.Since(start).Seconds())
	return nil
}

// CheckAlerts fetches quotes for active alert tickers and evaluates them.
func (a *App) CheckAlerts(ctx context.Context) ([]alert.Alert, error) {
	tickers := a.alerts.Tickers()
	if len(tickers) == 0 {
		return nil, nil
	}
	results := a.cache.LookupMany(ctx, tickers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.evaluate(ctx, results), nil
}

// evaluate runs the fresh quotes through the alert registry, persists and
// announces anything that fired.
func (a *App) evaluate(ctx context.Context, results map[string]pricecache.Result) []alert.Alert {
	fired := a.alerts.Evaluate(freshQuotes(results))
	if len(fired) == 0 {
		return fired
	}

	for _, al := range fired {
		a.logger.Info("alert triggered",
			zap.String("id", al.ID),
			zap.String("alert", al.Describe()),
			zap.String("price", al.TriggeredPrice.String()),
		)
	}
	a.metrics.RecordAlertsTriggered(len(fired))
	_ = a.saveAlerts(ctx)
	a.notify(fired)
	return fired
}

// revalue prices positions on fresh quotes only; a position whose quote is
// stale or missing is reported unavailable.
func (a *App) revalue(results map[string]pricecache.Result) ledger.Valuation {
	v := a.ledger.Reprice(freshQuotes(results))
	a.storeValuation(v)
	a.metrics.SetAccount(v.Equity.InexactFloat64(), v.Cash.InexactFloat64())
	return v
}

// storeValuation keeps v as the latest valuation unless it describes an
// older account revision than the one already stored or than the last reset.
func (a *App) storeValuation(v ledger.Valuation) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v.Revision < a.valFloor {
		return false
	}
	if a.valuation != nil && a.valuation.Revision > v.Revision {
		return false
	}
	a.valuation = &v
	return true
}

// freshQuotes keeps the quotes that were fetched within the TTL.
func freshQuotes(results map[string]pricecache.Result) map[string]core.Quote {
	out := make(map[string]core.Quote, len(results))
	for t, r := range results {
		if r.Err == nil && !r.Stale {
			out[t] = r.Quote
		}
	}
	return out
}

// notify hands trigger events to the router. Delivery happens in the
// background and never affects the committed trigger.
func (a *App) notify(fired []alert.Alert) {
	events := make([]core.AlertTriggered, len(fired))
	for i, al := range fired {
		events[i] = al.Event()
	}
	a.router.Route(events)
}

// trackedTickers is the watchlist plus active alert and position tickers.
func (a *App) trackedTickers() []string {
	a.mu.RLock()
	tickers := make([]string, 0, len(a.watchlist))
	tickers = append(tickers, a.watchlist...)
	a.mu.RUnlock()

	tickers = append(tickers, a.alerts.Tickers()...)
	tickers = append(tickers, a.ledger.Tickers()...)
	return normalizeTickers(tickers)
}

// Quotes looks up tickers, or the watchlist when none are given.
func (a *App) Quotes(ctx context.Context, tickers []string) map[string]pricecache.Result {
	if len(tickers) == 0 {
		tickers = a.GetWatchlist()
	}
	return a.cache.LookupMany(ctx, tickers)
}

// ForceRefresh discards the cached quote for ticker and fetches it again.
func (a *App) ForceRefresh(ctx context.Context, ticker string) pricecache.Result {
	a.cache.Invalidate(ticker)
	return a.cache.Lookup(ctx, ticker)
}

// CreateAlert registers a new price alert.
func (a *App) CreateAlert(ctx context.Context, ticker string, direction core.Direction, target decimal.Decimal, note string) (alert.Alert, error) {
	al, err := a.alerts.Create(ticker, direction, target, note)
	if err != nil {
		return alert.Alert{}, err
	}
	a.metrics.RecordAlertCreated()
	a.logger.Info("alert created", zap.String("id", al.ID), zap.String("alert", al.Describe()))
	return al, a.saveAlerts(ctx)
}

// DeleteAlert removes an alert. It reports whether the alert existed.
func (a *App) DeleteAlert(ctx context.Context, id string) (bool, error) {
	if !a.alerts.Delete(id) {
		return false, nil
	}
	return true, a.saveAlerts(ctx)
}

// ClearTriggered removes all triggered alerts and returns how many.
func (a *App) ClearTriggered(ctx context.Context) (int, error) {
	n := a.alerts.ClearTriggered()
	if n == 0 {
		return 0, nil
	}
	return n, a.saveAlerts(ctx)
}

// PlaceOrder executes a market order. When err wraps core.ErrStorageFailed
// the trade was committed but not persisted.
func (a *App) PlaceOrder(ctx context.Context, side core.Side, ticker string, quantity int64) (ledger.Trade, error) {
	trade, err := a.ledger.Execute(ctx, side, ticker, quantity)
	a.metrics.RecordOrder(strings.ToUpper(string(side)), outcome(err))
	if err != nil {
		a.logger.Info("order rejected",
			zap.String("side", string(side)),
			zap.String("ticker", ticker),
			zap.Int64("quantity", quantity),
			zap.Error(err),
		)
		return ledger.Trade{}, err
	}
	return trade, a.saveAccount(ctx)
}

// ResetAccount wipes the account back to its initial balance.
func (a *App) ResetAccount(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return core.ErrResetNotConfirmed
	}
	if err := a.ledger.Reset(ledger.ConfirmReset); err != nil {
		return err
	}
	a.mu.Lock()
	a.valuation = nil
	a.valFloor = a.ledger.Revision()
	a.mu.Unlock()
	return a.saveAccount(ctx)
}

// Valuation prices the current positions and returns the account value.
func (a *App) Valuation(ctx context.Context) ledger.Valuation {
	tickers := a.ledger.Tickers()
	var results map[string]pricecache.Result
	if len(tickers) > 0 {
		results = a.cache.LookupMany(ctx, tickers)
	}
	return a.revalue(results)
}

// LastValuation returns the valuation of the latest refresh cycle.
func (a *App) LastValuation() (ledger.Valuation, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.valuation == nil {
		return ledger.Valuation{}, false
	}
	return *a.valuation, true
}

// Trades returns the trade history in execution order.
func (a *App) Trades() []ledger.Trade {
	return a.ledger.Trades()
}

// ExportTrades writes the trade history as CSV.
func (a *App) ExportTrades(w io.Writer) error {
	return a.ledger.WriteCSV(w)
}

// RefreshStatus returns the scheduler state.
func (a *App) RefreshStatus() scheduler.Status {
	return a.scheduler.Status()
}

// ConfigureRefresh toggles the periodic refresh and changes its interval.
// A nil enabled or zero interval leaves that setting unchanged.
func (a *App) ConfigureRefresh(enabled *bool, interval time.Duration) (scheduler.Status, error) {
	if interval != 0 {
		if err := a.scheduler.SetInterval(interval); err != nil {
			return a.scheduler.Status(), err
		}
	}
	if enabled != nil {
		if *enabled {
			if err := a.scheduler.Enable(); err != nil {
				return a.scheduler.Status(), err
			}
		} else {
			a.scheduler.Disable()
		}
	}
	return a.scheduler.Status(), nil
}

// RunRefresh runs one refresh cycle now.
func (a *App) RunRefresh(ctx context.Context) error {
	return a.scheduler.RunNow(ctx)
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	a.mu.RLock()
	watchlist := len(a.watchlist)
	a.mu.RUnlock()

	return map[string]any{
		"refresh":   a.scheduler.Enabled(),
		"source":    a.source.Name(),
		"store":     a.persister.Store().Name(),
		"watchlist": watchlist,
		"cached":    a.cache.Len(),
		"alerts":    a.alerts.Len(),
		"positions": len(a.ledger.Positions()),
		"notifiers": a.router.Registry().Len(),
		"revision":  a.ledger.Revision(),
	}
}

// GetWatchlist returns the current watchlist tickers.
func (a *App) GetWatchlist() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]string, len(a.watchlist))
	copy(result, a.watchlist)
	return result
}

// AddToWatchlist adds a ticker to the watchlist. It reports false when the
// ticker was already present.
func (a *App) AddToWatchlist(ctx context.Context, ticker string) (bool, error) {
	ticker = core.NormalizeTicker(ticker)
	if ticker == "" {
		return false, core.Errorf(core.ErrInvalidTicker, "ticker is required")
	}

	a.mu.Lock()
	for _, t := range a.watchlist {
		if t == ticker {
			a.mu.Unlock()
			return false, nil
		}
	}
	a.watchlist = append(a.watchlist, ticker)
	sort.Strings(a.watchlist)
	a.watchRev++
	size := len(a.watchlist)
	a.mu.Unlock()

	a.metrics.SetWatchlistSize(size)
	return true, a.saveWatchlist(ctx)
}

// RemoveFromWatchlist removes a ticker from the watchlist.
func (a *App) RemoveFromWatchlist(ctx context.Context, ticker string) (bool, error) {
	ticker = core.NormalizeTicker(ticker)

	a.mu.Lock()
	idx := -1
	for i, t := range a.watchlist {
		if t == ticker {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return false, nil
	}
	a.watchlist = append(a.watchlist[:idx], a.watchlist[idx+1:]...)
	a.watchRev++
	size := len(a.watchlist)
	a.mu.Unlock()

	a.metrics.SetWatchlistSize(size)
	return true, a.saveWatchlist(ctx)
}

func (a *App) saveAccount(ctx context.Context) error {
	err := a.persister.Save(context.WithoutCancel(ctx), KeyAccount, func() (any, uint64) {
		acct := a.ledger.Snapshot()
		return acct, acct.Revision
	})
	if err != nil {
		a.logger.Error("persisting account failed", zap.Error(err))
	}
	return err
}

func (a *App) saveAlerts(ctx context.Context) error {
	err := a.persister.Save(context.WithoutCancel(ctx), KeyAlerts, func() (any, uint64) {
		return a.alerts.Snapshot(), 0
	})
	if err != nil {
		a.logger.Error("persisting alerts failed", zap.Error(err))
	}
	return err
}

func (a *App) saveWatchlist(ctx context.Context) error {
	err := a.persister.Save(context.WithoutCancel(ctx), KeyWatchlist, func() (any, uint64) {
		a.mu.RLock()
		defer a.mu.RUnlock()
		tickers := make([]string, len(a.watchlist))
		copy(tickers, a.watchlist)
		return watchlistState{Tickers: tickers, Revision: a.watchRev}, a.watchRev
	})
	if err != nil {
		a.logger.Error("persisting watchlist failed", zap.Error(err))
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "filled"
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return strings.ToLower(coreErr.Code)
	}
	return "error"
}

// normalizeTickers upper-cases, de-duplicates and sorts tickers.
func normalizeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = core.NormalizeTicker(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
