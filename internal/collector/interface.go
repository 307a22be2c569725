package collector

import (
	"context"

	"github.com/newthinker/paperdesk/internal/core"
)

// FetchResult is the outcome of fetching one ticker. Exactly one of Quote
// and Err is meaningful.
type FetchResult struct {
	Quote core.Quote
	Err   error
}

// Source defines the interface for external price sources
type Source interface {
	// Name returns the unique identifier for this source
	Name() string

	// FetchLatest fetches the latest quote for every ticker in one batch.
	// A failure for one ticker must not affect the others; tickers missing
	// from the returned map are treated as not available.
	FetchLatest(ctx context.Context, tickers []string) map[string]FetchResult
}

// Failed builds a result map that reports err for every ticker.
func Failed(tickers []string, err error) map[string]FetchResult {
	out := make(map[string]FetchResult, len(tickers))
	for _, t := range tickers {
		out[t] = FetchResult{Err: core.WrapError(core.ErrNotAvailable, err)}
	}
	return out
}
