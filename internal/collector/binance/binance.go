// Package binance prices crypto tickers from the Binance spot API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL = "https://api.binance.com"
	defaultQuote   = "USDT"

	// maxConcurrent bounds per-symbol requests after a rejected batch.
	maxConcurrent = 4
)

// quoteCurrencies are the pair suffixes recognised as already quoted.
var quoteCurrencies = []string{"USDT", "USDC", "FDUSD", "BTC", "ETH", "BNB"}

// Binance implements a price source backed by the 24hr ticker endpoint.
type Binance struct {
	client  *http.Client
	baseURL string
	quote   string
}

// New creates a new Binance source.
func New() *Binance {
	return &Binance{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		quote:   defaultQuote,
	}
}

// WithBaseURL points the source at a different API host.
func (b *Binance) WithBaseURL(u string) *Binance {
	b.baseURL = strings.TrimRight(u, "/")
	return b
}

// WithQuote sets the quote currency appended to bare tickers like BTC.
func (b *Binance) WithQuote(quote string) *Binance {
	if quote != "" {
		b.quote = strings.ToUpper(quote)
	}
	return b
}

func (b *Binance) Name() string {
	return "binance"
}

// Pair maps a ticker to a Binance trading pair: "BTC", "btc-usd" and
// "BTC/USDT" all become BTCUSDT with the default quote.
func (b *Binance) Pair(ticker string) string {
	s := strings.ToUpper(strings.TrimSpace(ticker))
	s = strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)
	if s == "" {
		return ""
	}
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s
		}
	}
	if strings.HasSuffix(s, "USD") && len(s) > 3 {
		s = strings.TrimSuffix(s, "USD")
	}
	return s + b.quote
}

// FetchLatest prices all tickers with one batch request. Binance rejects a
// batch containing any unknown pair, so a rejected batch is retried one
// pair at a time to keep failures isolated.
func (b *Binance) FetchLatest(ctx context.Context, tickers []string) map[string]collector.FetchResult {
	if len(tickers) == 0 {
		return map[string]collector.FetchResult{}
	}

	pairs := make(map[string][]string, len(tickers))
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		p := b.Pair(t)
		if _, seen := pairs[p]; !seen {
			symbols = append(symbols, p)
		}
		pairs[p] = append(pairs[p], t)
	}

	stats, err := b.fetchBatch(ctx, symbols)
	if err != nil {
		var status statusError
		if !errors.As(err, &status) || status.code != http.StatusBadRequest || len(symbols) == 1 {
			return collector.Failed(tickers, err)
		}
		return b.fetchEach(ctx, pairs)
	}

	results := make(map[string]collector.FetchResult, len(tickers))
	for _, st := range stats {
		for _, t := range pairs[st.Symbol] {
			q, err := toQuote(t, st)
			if err != nil {
				results[t] = collector.FetchResult{Err: core.WrapError(core.ErrNotAvailable, err)}
				continue
			}
			results[t] = collector.FetchResult{Quote: q}
		}
	}
	return results
}

func (b *Binance) fetchEach(ctx context.Context, pairs map[string][]string) map[string]collector.FetchResult {
	results := make(map[string]collector.FetchResult)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for symbol, tickers := range pairs {
		g.Go(func() error {
			stats, err := b.fetchBatch(gctx, []string{symbol})
			mu.Lock()
			defer mu.Unlock()
			for _, t := range tickers {
				if err != nil || len(stats) == 0 {
					if err == nil {
						err = fmt.Errorf("no ticker for pair %s", symbol)
					}
					results[t] = collector.FetchResult{Err: core.WrapError(core.ErrNotAvailable, err)}
					continue
				}
				q, qerr := toQuote(t, stats[0])
				if qerr != nil {
					results[t] = collector.FetchResult{Err: core.WrapError(core.ErrNotAvailable, qerr)}
					continue
				}
				results[t] = collector.FetchResult{Quote: q}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (b *Binance) fetchBatch(ctx context.Context, symbols []string) ([]ticker24hr, error) {
	list, err := json.Marshal(symbols)
	if err != nil {
		return nil, fmt.Errorf("encoding symbols: %w", err)
	}
	u := fmt.Sprintf("%s/api/v3/ticker/24hr?symbols=%s", b.baseURL, url.QueryEscape(string(list)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching tickers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError{code: resp.StatusCode}
	}

	var out []ticker24hr
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

func toQuote(ticker string, st ticker24hr) (core.Quote, error) {
	price, err := decimal.NewFromString(st.LastPrice)
	if err != nil || !price.IsPositive() {
		return core.Quote{}, fmt.Errorf("bad last price %q for %s", st.LastPrice, st.Symbol)
	}

	q := core.Quote{
		Ticker: ticker,
		Price:  price,
		AsOf:   time.UnixMilli(st.CloseTime).UTC(),
		Source: "binance",
	}
	if change, err := decimal.NewFromString(st.PriceChange); err == nil {
		q.ChangeAbs = change
	}
	if pct, err := decimal.NewFromString(st.PriceChangePercent); err == nil {
		q.ChangePct = pct
	}
	if vol, err := decimal.NewFromString(st.Volume); err == nil {
		q.Volume = vol.IntPart()
	}
	return q, nil
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}

// Binance API response types
type ticker24hr struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	Volume             string `json:"volume"`
	CloseTime          int64  `json:"closeTime"`
}
