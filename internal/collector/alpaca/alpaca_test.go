package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls   int
	symbols []string
	snaps   map[string]*marketdata.Snapshot
	err     error
}

func (f *fakeClient) GetSnapshots(symbols []string, req marketdata.GetSnapshotRequest) (map[string]*marketdata.Snapshot, error) {
	f.calls++
	f.symbols = symbols
	return f.snaps, f.err
}

func TestAlpaca_ImplementsSource(t *testing.T) {
	var _ collector.Source = (*Alpaca)(nil)
}

func TestAlpaca_FetchLatest_SingleBatchCall(t *testing.T) {
	ts := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	fake := &fakeClient{
		snaps: map[string]*marketdata.Snapshot{
			"AAPL": {
				LatestTrade: &marketdata.Trade{Price: 110, Timestamp: ts},
				DailyBar:    &marketdata.Bar{Open: 100, Close: 109, Volume: 12345, Timestamp: ts},
			},
			"MSFT": {
				DailyBar: &marketdata.Bar{Open: 400, Close: 410, Volume: 10, Timestamp: ts},
			},
		},
	}
	a := &Alpaca{client: fake}

	results := a.FetchLatest(context.Background(), []string{"AAPL", "MSFT", "GONE"})

	assert.Equal(t, 1, fake.calls)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "GONE"}, fake.symbols)

	aapl := results["AAPL"]
	require.NoError(t, aapl.Err)
	assert.True(t, aapl.Quote.Price.Equal(decimal.NewFromInt(110)))
	assert.True(t, aapl.Quote.ChangeAbs.Equal(decimal.NewFromInt(10)))
	assert.True(t, aapl.Quote.ChangePct.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(12345), aapl.Quote.Volume)
	assert.Equal(t, ts, aapl.Quote.AsOf)

	msft := results["MSFT"]
	require.NoError(t, msft.Err)
	assert.True(t, msft.Quote.Price.Equal(decimal.NewFromInt(410)))

	assert.True(t, errors.Is(results["GONE"].Err, core.ErrNotAvailable))
}

func TestAlpaca_FetchLatest_RequestError(t *testing.T) {
	fake := &fakeClient{err: errors.New("rate limited")}
	a := &Alpaca{client: fake}

	results := a.FetchLatest(context.Background(), []string{"AAPL", "MSFT"})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, errors.Is(r.Err, core.ErrNotAvailable))
	}
}

func TestAlpaca_FetchLatest_Empty(t *testing.T) {
	fake := &fakeClient{}
	a := &Alpaca{client: fake}

	results := a.FetchLatest(context.Background(), nil)
	assert.Empty(t, results)
	assert.Equal(t, 0, fake.calls)
}
