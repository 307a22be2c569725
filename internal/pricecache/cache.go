// Package pricecache bounds and coalesces lookups against an external price
// source. It is the single source of "current price" for alerts and the ledger.
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/core"
	"go.uber.org/zap"
)

// Config holds cache settings.
type Config struct {
	// TTL is the maximum age of a cached quote before it is refetched.
	TTL time.Duration
	// FetchTimeout bounds one batch call to the source.
	FetchTimeout time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:          5 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

// Result is the outcome of looking up one ticker.
type Result struct {
	Quote core.Quote
	// Stale is set when a refetch failed and the last known good quote
	// was served instead.
	Stale bool
	// Err is non-nil only when no quote at all is available.
	Err error
}

// Available reports whether the result carries a quote.
func (r Result) Available() bool {
	return r.Err == nil
}

// Metrics receives cache observations.
type Metrics interface {
	CacheHit()
	CacheMiss()
	CacheStale()
	SourceFetch(source string, tickers, failed int, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) CacheHit()                                   {}
func (nopMetrics) CacheMiss()                                  {}
func (nopMetrics) CacheStale()                                 {}
func (nopMetrics) SourceFetch(string, int, int, time.Duration) {}

type entry struct {
	quote     core.Quote
	fetchedAt time.Time
}

// flight is one outstanding fetch for a ticker; joiners wait on done.
type flight struct {
	done chan struct{}
	res  Result
}

// Cache is a TTL price cache in front of a collector.Source.
type Cache struct {
	source  collector.Source
	cfg     Config
	logger  *zap.Logger
	metrics Metrics

	mu      sync.RWMutex
	entries map[string]entry

	flightMu sync.Mutex
	flights  map[string]*flight

	// For testing: allow time advancement
	now func() time.Time
}

// New creates a cache over source.
func New(source collector.Source, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Cache{
		source:  source,
		cfg:     cfg,
		logger:  logger,
		metrics: nopMetrics{},
		entries: make(map[string]entry),
		flights: make(map[string]*flight),
		now:     time.Now,
	}
}

// SetMetrics attaches a metrics sink.
func (c *Cache) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	c.metrics = m
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.cfg.TTL
}

// Lookup returns the current quote for one ticker.
func (c *Cache) Lookup(ctx context.Context, ticker string) Result {
	t := core.NormalizeTicker(ticker)
	if t == "" {
		return Result{Err: core.WrapError(core.ErrNotAvailable, core.ErrInvalidTicker)}
	}
	return c.LookupMany(ctx, []string{t})[t]
}

// LookupMany returns current quotes for a set of tickers. Fresh entries are
// served from memory; all distinct stale tickers not already being fetched
// go to the source in a single batch call. Callers asking for a ticker whose
// fetch is in flight wait for that fetch instead of starting another.
func (c *Cache) LookupMany(ctx context.Context, tickers []string) map[string]Result {
	wanted := dedupe(tickers)
	results := make(map[string]Result, len(wanted))

	var missing []string
	now := c.now()
	c.mu.RLock()
	for _, t := range wanted {
		if e, ok := c.entries[t]; ok && c.fresh(e, now) {
			results[t] = Result{Quote: e.quote}
			c.metrics.CacheHit()
			continue
		}
		missing = append(missing, t)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return results
	}

	waits, lead := c.claim(missing, results)
	if len(lead) > 0 {
		go c.fetch(lead)
	}

	for t, f := range waits {
		select {
		case <-f.done:
			results[t] = f.res
		case <-ctx.Done():
			results[t] = Result{Err: core.WrapError(core.ErrNotAvailable, ctx.Err())}
		}
	}
	return results
}

// claim registers a flight for every missing ticker that has none and
// returns the flights to wait on plus the tickers this caller must fetch.
// Tickers that became fresh since the first check are answered directly.
func (c *Cache) claim(missing []string, results map[string]Result) (map[string]*flight, []string) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()

	waits := make(map[string]*flight, len(missing))
	var lead []string
	now := c.now()

	for _, t := range missing {
		if f, ok := c.flights[t]; ok {
			waits[t] = f
			continue
		}
		c.mu.RLock()
		e, ok := c.entries[t]
		c.mu.RUnlock()
		if ok && c.fresh(e, now) {
			results[t] = Result{Quote: e.quote}
			c.metrics.CacheHit()
			continue
		}
		f := &flight{done: make(chan struct{})}
		c.flights[t] = f
		waits[t] = f
		lead = append(lead, t)
		c.metrics.CacheMiss()
	}
	return waits, lead
}

// fetch performs one batch call for tickers and resolves their flights.
// It runs detached from any caller so an abandoned lookup cannot leave
// joiners hanging; the source call is bounded by FetchTimeout instead.
func (c *Cache) fetch(tickers []string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	start := c.now()
	fetched := c.fetchLatest(ctx, tickers)
	duration := c.now().Sub(start)

	failed := 0
	resolved := make(map[string]Result, len(tickers))

	c.mu.Lock()
	fetchedAt := c.now()
	for _, t := range tickers {
		r, ok := fetched[t]
		var err error
		switch {
		case !ok:
			err = errors.New("missing from source response")
		case r.Err != nil:
			err = r.Err
		case !r.Quote.IsValid():
			err = errors.New("empty quote")
		}

		if err == nil {
			q := r.Quote
			q.Ticker = t
			c.entries[t] = entry{quote: q, fetchedAt: fetchedAt}
			resolved[t] = Result{Quote: q}
			continue
		}

		failed++
		if old, ok := c.entries[t]; ok {
			resolved[t] = Result{Quote: old.quote, Stale: true}
			c.metrics.CacheStale()
		} else {
			resolved[t] = Result{Err: core.WrapError(core.ErrNotAvailable, err)}
		}
		c.logger.Debug("price fetch failed",
			zap.String("ticker", t),
			zap.String("source", c.source.Name()),
			zap.Error(err),
		)
	}
	c.mu.Unlock()

	c.metrics.SourceFetch(c.source.Name(), len(tickers), failed, duration)

	c.flightMu.Lock()
	flights := make([]*flight, 0, len(tickers))
	for _, t := range tickers {
		if f, ok := c.flights[t]; ok {
			f.res = resolved[t]
			flights = append(flights, f)
			delete(c.flights, t)
		}
	}
	c.flightMu.Unlock()

	for _, f := range flights {
		close(f.done)
	}
}

// fetchLatest calls the source. A panicking source fails the whole batch
// instead of the process, so the claimed flights still resolve.
func (c *Cache) fetchLatest(ctx context.Context, tickers []string) (out map[string]collector.FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("price source panicked",
				zap.String("source", c.source.Name()),
				zap.Any("panic", r),
			)
			out = collector.Failed(tickers, fmt.Errorf("source %s panicked: %v", c.source.Name(), r))
		}
	}()
	return c.source.FetchLatest(ctx, tickers)
}

// Peek returns the cached quote for ticker without touching the source.
func (c *Cache) Peek(ticker string) (Result, bool) {
	t := core.NormalizeTicker(ticker)
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[t]
	if !ok {
		return Result{}, false
	}
	return Result{Quote: e.quote, Stale: !c.fresh(e, c.now())}, true
}

// Invalidate forces the next lookup of ticker to refetch. The cached quote
// is kept as last known good.
func (c *Cache) Invalidate(ticker string) {
	t := core.NormalizeTicker(ticker)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[t]; ok {
		e.fetchedAt = time.Time{}
		c.entries[t] = e
	}
}

// Len returns the number of cached tickers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) fresh(e entry, now time.Time) bool {
	return !e.fetchedAt.IsZero() && now.Sub(e.fetchedAt) < c.cfg.TTL
}

// Quotes extracts the available quotes from a lookup result map.
func Quotes(results map[string]Result) map[string]core.Quote {
	out := make(map[string]core.Quote, len(results))
	for t, r := range results {
		if r.Available() {
			out[t] = r.Quote
		}
	}
	return out
}

func dedupe(tickers []string) []string {
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
