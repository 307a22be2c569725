package alert

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(ticker string, price int64) core.Quote {
	return core.Quote{Ticker: ticker, Price: decimal.NewFromInt(price)}
}

func quotes(qs ...core.Quote) map[string]core.Quote {
	m := make(map[string]core.Quote, len(qs))
	for _, q := range qs {
		m[q.Ticker] = q
	}
	return m
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	base := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	seq := 0
	r.newID = func() string {
		seq++
		return fmt.Sprintf("alert-%d", seq)
	}
	return r
}

func TestRegistry_Create(t *testing.T) {
	r := newTestRegistry()

	a, err := r.Create(" aapl ", core.DirectionAbove, decimal.NewFromInt(200), "breakout")
	require.NoError(t, err)
	assert.Equal(t, "alert-1", a.ID)
	assert.Equal(t, "AAPL", a.Ticker)
	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, "breakout", a.Note)
	assert.Nil(t, a.TriggeredAt)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_CreateInvalid(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		name   string
		ticker string
		dir    core.Direction
		target decimal.Decimal
	}{
		{"empty ticker", "  ", core.DirectionAbove, decimal.NewFromInt(1)},
		{"zero target", "AAPL", core.DirectionAbove, decimal.Zero},
		{"negative target", "AAPL", core.DirectionBelow, decimal.NewFromInt(-5)},
		{"unknown direction", "AAPL", core.Direction("SIDEWAYS"), decimal.NewFromInt(1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Create(tc.ticker, tc.dir, tc.target, "")
			assert.True(t, errors.Is(err, core.ErrInvalidAlert), "got %v", err)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_EvaluateFiresOnce(t *testing.T) {
	r := newTestRegistry()
	above, _ := r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(200), "")
	below, _ := r.Create("AAPL", core.DirectionBelow, decimal.NewFromInt(150), "")

	assert.Empty(t, r.Evaluate(quotes(quote("AAPL", 199))))

	r.advanceTime(time.Minute)
	fired := r.Evaluate(quotes(quote("AAPL", 201)))
	require.Len(t, fired, 1)
	assert.Equal(t, above.ID, fired[0].ID)
	assert.Equal(t, StatusTriggered, fired[0].Status)
	require.NotNil(t, fired[0].TriggeredPrice)
	assert.True(t, fired[0].TriggeredPrice.Equal(decimal.NewFromInt(201)))
	assert.Equal(t, time.Date(2024, 3, 1, 14, 31, 0, 0, time.UTC), *fired[0].TriggeredAt)

	// later crossings never report the same alert again
	assert.Empty(t, r.Evaluate(quotes(quote("AAPL", 250))))
	assert.Empty(t, r.Evaluate(quotes(quote("AAPL", 180))))

	fired = r.Evaluate(quotes(quote("AAPL", 140)))
	require.Len(t, fired, 1)
	assert.Equal(t, below.ID, fired[0].ID)
}

func TestRegistry_EvaluateEqualTarget(t *testing.T) {
	r := newTestRegistry()
	r.Create("MSFT", core.DirectionAbove, decimal.NewFromInt(400), "")
	r.Create("MSFT", core.DirectionBelow, decimal.NewFromInt(400), "")

	fired := r.Evaluate(quotes(quote("MSFT", 400)))
	assert.Len(t, fired, 2)
}

func TestRegistry_EvaluateSkipsMissingTickers(t *testing.T) {
	r := newTestRegistry()
	r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(1), "")
	r.Create("TSLA", core.DirectionAbove, decimal.NewFromInt(1), "")

	fired := r.Evaluate(quotes(quote("AAPL", 10)))
	require.Len(t, fired, 1)
	assert.Equal(t, "AAPL", fired[0].Ticker)
	assert.Equal(t, []string{"TSLA"}, r.Tickers())
	assert.Nil(t, r.Evaluate(nil))
}

func TestRegistry_ConcurrentEvaluateAtMostOnce(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 20; i++ {
		r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(int64(100+i)), "")
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, a := range r.Evaluate(quotes(quote("AAPL", 500))) {
				mu.Lock()
				seen[a.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "alert %s fired %d times", id, n)
	}
}

func TestRegistry_DeleteIdempotent(t *testing.T) {
	r := newTestRegistry()
	a, _ := r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(200), "")

	assert.True(t, r.Delete(a.ID))
	assert.False(t, r.Delete(a.ID))
	assert.False(t, r.Delete("missing"))

	_, err := r.Get(a.ID)
	assert.True(t, errors.Is(err, core.ErrAlertNotFound))
}

func TestRegistry_ClearTriggeredIdempotent(t *testing.T) {
	r := newTestRegistry()
	r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(100), "")
	keep, _ := r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(300), "")
	r.Create("MSFT", core.DirectionBelow, decimal.NewFromInt(500), "")

	r.Evaluate(quotes(quote("AAPL", 150), quote("MSFT", 400)))
	require.Len(t, r.Triggered(), 2)

	assert.Equal(t, 2, r.ClearTriggered())
	assert.Equal(t, 0, r.ClearTriggered())

	remaining := r.List()
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)
	assert.Len(t, r.Active(), 1)
}

func TestRegistry_ReturnedAlertsAreCopies(t *testing.T) {
	r := newTestRegistry()
	r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(100), "")
	fired := r.Evaluate(quotes(quote("AAPL", 150)))
	require.Len(t, fired, 1)

	*fired[0].TriggeredPrice = decimal.NewFromInt(1)

	got, err := r.Get(fired[0].ID)
	require.NoError(t, err)
	assert.True(t, got.TriggeredPrice.Equal(decimal.NewFromInt(150)))
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	r := newTestRegistry()
	r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(100), "first")
	r.Create("MSFT", core.DirectionBelow, decimal.NewFromInt(300), "second")
	r.Evaluate(quotes(quote("AAPL", 120)))

	snap := r.Snapshot()

	restored := NewRegistry()
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, r.List(), restored.List())
	assert.Equal(t, []string{"MSFT"}, restored.Tickers())

	// restored triggered alerts stay triggered
	assert.Empty(t, restored.Evaluate(quotes(quote("AAPL", 999))))
}

func TestRegistry_RestoreRejectsInvalid(t *testing.T) {
	r := newTestRegistry()
	r.Create("AAPL", core.DirectionAbove, decimal.NewFromInt(100), "")

	bad := Snapshot{Alerts: []Alert{{
		ID: "x", Ticker: "AAPL", Direction: core.DirectionAbove,
		TargetPrice: decimal.NewFromInt(1), Status: StatusTriggered,
	}}}
	err := r.Restore(bad)
	assert.True(t, errors.Is(err, core.ErrInvalidAlert))
	assert.Equal(t, 1, r.Len(), "failed restore must not change state")
}

func TestAlert_Event(t *testing.T) {
	at := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(205)
	a := Alert{
		ID: "a1", Ticker: "AAPL", Direction: core.DirectionAbove,
		TargetPrice: decimal.NewFromInt(200), Note: "breakout",
		Status: StatusTriggered, TriggeredAt: &at, TriggeredPrice: &price,
	}

	ev := a.Event()
	assert.Equal(t, "a1", ev.AlertID)
	assert.True(t, ev.Price.Equal(price))
	assert.Equal(t, at, ev.TriggeredAt)
	assert.Equal(t, "AAPL ABOVE 200", a.Describe())
}
