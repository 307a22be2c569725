package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	// maxConcurrent bounds parallel chart requests per batch.
	maxConcurrent = 4
)

// validSymbol matches stock symbols like AAPL, BRK.B, 0700.HK, BTC-USD
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9^]{1,10}([.\-=][A-Za-z0-9]{1,6})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo implements the Yahoo Finance price source
type Yahoo struct {
	client  *http.Client
	baseURL string
}

// New creates a new Yahoo source
func New() *Yahoo {
	return &Yahoo{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
	}
}

// WithBaseURL points the source at a different chart endpoint.
func (y *Yahoo) WithBaseURL(url string) *Yahoo {
	y.baseURL = url
	return y
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// FetchLatest fetches today's intraday chart for each ticker concurrently.
func (y *Yahoo) FetchLatest(ctx context.Context, tickers []string) map[string]collector.FetchResult {
	results := make(map[string]collector.FetchResult, len(tickers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, ticker := range tickers {
		g.Go(func() error {
			q, err := y.fetchQuote(gctx, ticker)
			res := collector.FetchResult{Quote: q}
			if err != nil {
				res = collector.FetchResult{Err: core.WrapError(core.ErrNotAvailable, err)}
			}
			mu.Lock()
			results[ticker] = res
			mu.Unlock()
			// per-ticker failures must not cancel siblings
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// fetchQuote fetches the 1-minute chart for the current day and derives
// price, change versus the day's open and the latest bar volume.
func (y *Yahoo) fetchQuote(ctx context.Context, symbol string) (core.Quote, error) {
	if err := validateSymbol(symbol); err != nil {
		return core.Quote{}, err
	}
	url := fmt.Sprintf("%s/%s?interval=1m&range=1d", y.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.Quote{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return core.Quote{}, fmt.Errorf("fetching quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Quote{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return core.Quote{}, fmt.Errorf("decoding response: %w", err)
	}

	if result.Chart.Error != nil {
		return core.Quote{}, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 {
		return core.Quote{}, fmt.Errorf("no data for symbol: %s", symbol)
	}

	return toQuote(symbol, result.Chart.Result[0])
}

func toQuote(symbol string, r chartResult) (core.Quote, error) {
	var open, last *float64
	var volume int64
	var lastTS int

	if len(r.Indicators.Quote) > 0 {
		bars := r.Indicators.Quote[0]
		for i := range r.Timestamp {
			if i < len(bars.Open) && bars.Open[i] != nil && open == nil {
				open = bars.Open[i]
			}
			if i < len(bars.Close) && bars.Close[i] != nil {
				last = bars.Close[i]
				lastTS = r.Timestamp[i]
				if i < len(bars.Volume) && bars.Volume[i] != nil {
					volume = int64(*bars.Volume[i])
				}
			}
		}
	}

	if last == nil {
		if r.Meta.RegularMarketPrice <= 0 {
			return core.Quote{}, fmt.Errorf("empty chart for symbol: %s", symbol)
		}
		p := r.Meta.RegularMarketPrice
		last = &p
		lastTS = r.Meta.RegularMarketTime
		volume = int64(r.Meta.RegularMarketVolume)
	}

	price := decimal.NewFromFloat(*last)
	q := core.Quote{
		Ticker: symbol,
		Price:  price,
		Volume: volume,
		AsOf:   time.Unix(int64(lastTS), 0).UTC(),
		Source: "yahoo",
	}

	if open != nil && *open > 0 {
		dayOpen := decimal.NewFromFloat(*open)
		q.ChangeAbs = price.Sub(dayOpen)
		q.ChangePct = q.ChangeAbs.Div(dayOpen).Mul(decimal.NewFromInt(100)).Round(4)
	}

	return q, nil
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int      `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol              string  `json:"symbol"`
	RegularMarketPrice  float64 `json:"regularMarketPrice"`
	RegularMarketVolume int     `json:"regularMarketVolume"`
	RegularMarketTime   int     `json:"regularMarketTime"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int     `json:"volume"`
}
