// Package static provides a price source backed by a fixed price table.
// It serves offline demos and tests.
package static

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
)

// Static implements collector.Source over an in-memory price table.
type Static struct {
	mu       sync.RWMutex
	prices   map[string]decimal.Decimal
	failures map[string]error
	calls    int
	now      func() time.Time
}

// New creates a static source seeded with prices.
func New(prices map[string]decimal.Decimal) *Static {
	s := &Static{
		prices:   make(map[string]decimal.Decimal, len(prices)),
		failures: make(map[string]error),
		now:      time.Now,
	}
	for t, p := range prices {
		s.prices[core.NormalizeTicker(t)] = p
	}
	return s
}

func (s *Static) Name() string { return "static" }

// SetPrice sets or replaces the price for ticker.
func (s *Static) SetPrice(ticker string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[core.NormalizeTicker(ticker)] = price
}

// Fail makes every fetch of ticker fail with err until cleared with a nil err.
func (s *Static) Fail(ticker string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, core.NormalizeTicker(ticker))
		return
	}
	s.failures[core.NormalizeTicker(ticker)] = err
}

// Calls returns the number of FetchLatest invocations.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) FetchLatest(ctx context.Context, tickers []string) map[string]collector.FetchResult {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return collector.Failed(tickers, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	results := make(map[string]collector.FetchResult, len(tickers))
	for _, t := range tickers {
		if err, failed := s.failures[t]; failed {
			results[t] = collector.FetchResult{Err: core.WrapError(core.ErrNotAvailable, err)}
			continue
		}
		price, ok := s.prices[t]
		if !ok {
			results[t] = collector.FetchResult{Err: core.WrapError(core.ErrNotAvailable, errors.New("unknown ticker"))}
			continue
		}
		results[t] = collector.FetchResult{Quote: core.Quote{
			Ticker: t,
			Price:  price,
			AsOf:   now,
			Source: "static",
		}}
	}
	return results
}
