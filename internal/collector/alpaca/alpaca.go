// Package alpaca implements a batch price source over the Alpaca market data API.
package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
)

// Config holds Alpaca credentials and feed selection.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string // "iex" or "sip"
}

// snapshotter is the slice of the marketdata client this source needs.
type snapshotter interface {
	GetSnapshots(symbols []string, req marketdata.GetSnapshotRequest) (map[string]*marketdata.Snapshot, error)
}

// Alpaca fetches quotes for a whole batch with one snapshots request.
type Alpaca struct {
	client snapshotter
	feed   string
}

// New creates a new Alpaca source.
func New(cfg Config) *Alpaca {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
		Feed:      marketdata.Feed(cfg.Feed),
	})
	return &Alpaca{client: client, feed: cfg.Feed}
}

func (a *Alpaca) Name() string { return "alpaca" }

// FetchLatest issues a single snapshots call for all tickers.
func (a *Alpaca) FetchLatest(ctx context.Context, tickers []string) map[string]collector.FetchResult {
	if len(tickers) == 0 {
		return map[string]collector.FetchResult{}
	}

	type reply struct {
		snaps map[string]*marketdata.Snapshot
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		snaps, err := a.client.GetSnapshots(tickers, marketdata.GetSnapshotRequest{
			Feed: marketdata.Feed(a.feed),
		})
		done <- reply{snaps: snaps, err: err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return collector.Failed(tickers, ctx.Err())
	case r = <-done:
	}

	if r.err != nil {
		return collector.Failed(tickers, fmt.Errorf("alpaca snapshots: %w", r.err))
	}

	results := make(map[string]collector.FetchResult, len(tickers))
	for _, ticker := range tickers {
		snap, ok := r.snaps[ticker]
		if !ok || snap == nil {
			results[ticker] = collector.FetchResult{
				Err: core.Errorf(core.ErrNotAvailable, "no snapshot for %s", ticker),
			}
			continue
		}
		q, err := toQuote(ticker, snap)
		if err != nil {
			results[ticker] = collector.FetchResult{Err: core.WrapError(core.ErrNotAvailable, err)}
			continue
		}
		results[ticker] = collector.FetchResult{Quote: q}
	}
	return results
}

func toQuote(ticker string, snap *marketdata.Snapshot) (core.Quote, error) {
	var price float64
	var asOf time.Time

	switch {
	case snap.LatestTrade != nil && snap.LatestTrade.Price > 0:
		price = snap.LatestTrade.Price
		asOf = snap.LatestTrade.Timestamp
	case snap.DailyBar != nil && snap.DailyBar.Close > 0:
		price = snap.DailyBar.Close
		asOf = snap.DailyBar.Timestamp
	default:
		return core.Quote{}, fmt.Errorf("snapshot for %s has no price", ticker)
	}

	q := core.Quote{
		Ticker: ticker,
		Price:  decimal.NewFromFloat(price),
		AsOf:   asOf.UTC(),
		Source: "alpaca",
	}

	if bar := snap.DailyBar; bar != nil {
		q.Volume = int64(bar.Volume)
		if bar.Open > 0 {
			dayOpen := decimal.NewFromFloat(bar.Open)
			q.ChangeAbs = q.Price.Sub(dayOpen)
			q.ChangePct = q.ChangeAbs.Div(dayOpen).Mul(decimal.NewFromInt(100)).Round(4)
		}
	}

	return q, nil
}
