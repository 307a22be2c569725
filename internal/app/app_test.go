package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/paperdesk/internal/alert"
	"github.com/newthinker/paperdesk/internal/collector/static"
	"github.com/newthinker/paperdesk/internal/config"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/ledger"
	"github.com/newthinker/paperdesk/internal/notifier"
	"github.com/newthinker/paperdesk/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockNotifier struct {
	name string

	mu       sync.Mutex
	received []core.AlertTriggered
}

func (m *mockNotifier) Name() string                   { return m.name }
func (m *mockNotifier) Init(cfg notifier.Config) error { return nil }
func (m *mockNotifier) Notify(ev core.AlertTriggered) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, ev)
	return nil
}
func (m *mockNotifier) NotifyBatch(evs []core.AlertTriggered) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, evs...)
	return nil
}

func (m *mockNotifier) events() []core.AlertTriggered {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AlertTriggered(nil), m.received...)
}

type recordingMetrics struct {
	nopMetrics

	mu            sync.Mutex
	orders        []string
	notifications []string
	triggered     int
	cycles        []string
}

func (m *recordingMetrics) RecordOrder(side, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, side+":"+outcome)
}

func (m *recordingMetrics) RecordNotification(notifier, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notifier+":"+status)
}

func (m *recordingMetrics) RecordAlertsTriggered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggered += n
}

func (m *recordingMetrics) RecordRefreshCycle(status string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, status)
}

type failingStore struct {
	*storage.Memory
}

func (failingStore) Save(ctx context.Context, key string, data []byte) error {
	return errors.New("disk full")
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	// every lookup goes to the source
	cfg.Cache.TTL = time.Nanosecond
	cfg.Refresh.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, store storage.Store, prices map[string]int64) (*App, *static.Static) {
	t.Helper()
	table := make(map[string]decimal.Decimal, len(prices))
	for ticker, p := range prices {
		table[ticker] = decimal.NewFromInt(p)
	}
	src := static.New(table)
	if store == nil {
		store = storage.NewMemory()
	}
	a, err := New(testConfig(), src, storage.NewPersister(store, storage.JSON{}, nil), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	require.NoError(t, a.Load(context.Background()))
	return a, src
}

func TestApp_New(t *testing.T) {
	_, err := New(config.Defaults(), nil, nil, nil)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))

	cfg := config.Defaults()
	cfg.Refresh.Interval = 3 * time.Second
	_, err = New(cfg, static.New(nil), nil, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidInterval))

	a, err := New(config.Defaults(), static.New(nil), nil, nil)
	require.NoError(t, err)
	defer a.Stop()

	stats := a.GetStats()
	assert.Equal(t, false, stats["refresh"])
	assert.Equal(t, "static", stats["source"])
	assert.Equal(t, "memory", stats["store"])
}

func TestApp_LoadSeedsWatchlist(t *testing.T) {
	cfg := testConfig()
	cfg.Watchlist = []string{"msft", " aapl ", "MSFT"}
	store := storage.NewMemory()
	a, err := New(cfg, static.New(nil), storage.NewPersister(store, storage.JSON{}, nil), nil)
	require.NoError(t, err)
	defer a.Stop()

	require.NoError(t, a.Load(context.Background()))
	assert.Equal(t, []string{"AAPL", "MSFT"}, a.GetWatchlist())

	_, found, err := store.Load(context.Background(), KeyAccount)
	require.NoError(t, err)
	assert.True(t, found, "a fresh account is saved on first start")

	_, found, err = store.Load(context.Background(), KeyWatchlist)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestApp_LoadRestoresState(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	first, _ := newTestApp(t, store, map[string]int64{"AAPL": 100})

	_, err := first.PlaceOrder(ctx, core.SideBuy, "AAPL", 10)
	require.NoError(t, err)
	created, err := first.CreateAlert(ctx, "AAPL", core.DirectionAbove, decimal.NewFromInt(150), "take profit")
	require.NoError(t, err)
	_, err = first.AddToWatchlist(ctx, "nvda")
	require.NoError(t, err)

	second, _ := newTestApp(t, store, map[string]int64{"AAPL": 100})

	assert.True(t, second.Ledger().Cash().Equal(decimal.NewFromInt(99000)))
	assert.Equal(t, first.Ledger().Revision(), second.Ledger().Revision())
	assert.Len(t, second.Trades(), 1)
	got, err := second.Alerts().Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "take profit", got.Note)
	assert.Equal(t, []string{"NVDA"}, second.GetWatchlist())
}

func TestApp_LoadRejectsCorruptAccount(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Save(ctx, KeyAccount, []byte(`{"initial_balance":"1000","cash":"5000","positions":[],"trades":[]}`)))

	a, err := New(testConfig(), static.New(nil), storage.NewPersister(store, storage.JSON{}, nil), nil)
	require.NoError(t, err)
	defer a.Stop()

	err = a.Load(ctx)
	assert.True(t, errors.Is(err, core.ErrInvalidSnapshot), "got %v", err)
}

func TestApp_RefreshCycleTriggersAlertOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	a, src := newTestApp(t, store, map[string]int64{"AAPL": 190})
	n := &mockNotifier{name: "mock"}
	require.NoError(t, a.RegisterNotifier(n))
	m := &recordingMetrics{}
	a.SetMetrics(m)

	created, err := a.CreateAlert(ctx, "AAPL", core.DirectionAbove, decimal.NewFromInt(200), "breakout")
	require.NoError(t, err)

	require.NoError(t, a.RefreshCycle(ctx))
	assert.Len(t, a.Alerts().Active(), 1)

	src.SetPrice("AAPL", decimal.NewFromInt(205))
	require.NoError(t, a.RefreshCycle(ctx))
	require.NoError(t, a.RefreshCycle(ctx))

	a.router.Wait()
	events := n.events()
	require.Len(t, events, 1)
	assert.Equal(t, created.ID, events[0].AlertID)
	assert.True(t, events[0].Price.Equal(decimal.NewFromInt(205)))
	assert.Equal(t, 1, m.triggered)
	assert.Equal(t, []string{"mock:ok"}, m.notifications)
	// once the only alert has fired nothing is tracked
	assert.Equal(t, []string{"ok", "ok", "empty"}, m.cycles)

	// the triggered state is persisted
	var snap alert.Snapshot
	found, err := storage.NewPersister(store, storage.JSON{}, nil).Load(ctx, KeyAlerts, &snap)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, alert.StatusTriggered, snap.Alerts[0].Status)
}

func TestApp_StaleQuotesDoNotTriggerAlerts(t *testing.T) {
	ctx := context.Background()
	a, src := newTestApp(t, nil, map[string]int64{"AAPL": 100})
	_, err := a.AddToWatchlist(ctx, "AAPL")
	require.NoError(t, err)

	require.NoError(t, a.RefreshCycle(ctx))
	_, err = a.CreateAlert(ctx, "AAPL", core.DirectionBelow, decimal.NewFromInt(150), "")
	require.NoError(t, err)

	// the source fails, the cache serves the last known 100 as stale
	src.Fail("AAPL", errors.New("rate limited"))
	require.NoError(t, a.RefreshCycle(ctx))
	assert.Len(t, a.Alerts().Active(), 1, "stale quotes must not trigger alerts")

	src.Fail("AAPL", nil)
	require.NoError(t, a.RefreshCycle(ctx))
	assert.Len(t, a.Alerts().Triggered(), 1)
}

func TestApp_RefreshCycleCancelledDropsBatch(t *testing.T) {
	a, _ := newTestApp(t, nil, map[string]int64{"AAPL": 500})
	_, err := a.CreateAlert(context.Background(), "AAPL", core.DirectionAbove, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, a.RefreshCycle(ctx), context.Canceled)
	assert.Len(t, a.Alerts().Active(), 1)
	_, ok := a.LastValuation()
	assert.False(t, ok)
}

func TestApp_RefreshCycleAllUnavailable(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil, nil)
	_, err := a.AddToWatchlist(ctx, "GHOST")
	require.NoError(t, err)

	err = a.RefreshCycle(ctx)
	assert.True(t, errors.Is(err, core.ErrNotAvailable), "got %v", err)
}

func TestApp_RefreshCycleRevalues(t *testing.T) {
	ctx := context.Background()
	a, src := newTestApp(t, nil, map[string]int64{"AAPL": 100})

	_, err := a.PlaceOrder(ctx, core.SideBuy, "AAPL", 10)
	require.NoError(t, err)

	src.SetPrice("AAPL", decimal.NewFromInt(110))
	require.NoError(t, a.RefreshCycle(ctx))

	v, ok := a.LastValuation()
	require.True(t, ok)
	assert.True(t, v.Complete)
	assert.True(t, v.Equity.Equal(decimal.NewFromInt(100100)), "equity %s", v.Equity)
	assert.True(t, v.UnrealizedPnL.Equal(decimal.NewFromInt(100)))
}

func TestApp_RefreshCycleStaleQuoteLeavesPositionUnpriced(t *testing.T) {
	ctx := context.Background()
	a, src := newTestApp(t, nil, map[string]int64{"AAPL": 100})

	_, err := a.PlaceOrder(ctx, core.SideBuy, "AAPL", 10)
	require.NoError(t, err)

	// the cache still holds 100 as last known good
	src.Fail("AAPL", errors.New("rate limited"))
	require.NoError(t, a.RefreshCycle(ctx))

	v, ok := a.LastValuation()
	require.True(t, ok)
	assert.False(t, v.Complete)
	require.Len(t, v.Positions, 1)
	assert.False(t, v.Positions[0].Priced())
	assert.True(t, v.Equity.Equal(decimal.NewFromInt(99000)), "equity %s", v.Equity)

	src.Fail("AAPL", nil)
	require.NoError(t, a.RefreshCycle(ctx))
	v, _ = a.LastValuation()
	assert.True(t, v.Complete)
	assert.True(t, v.Positions[0].Priced())
}

func TestApp_ResetDiscardsOlderValuation(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil, map[string]int64{"AAPL": 100})

	_, err := a.PlaceOrder(ctx, core.SideBuy, "AAPL", 10)
	require.NoError(t, err)

	// a cycle priced the account just before the reset committed
	before := a.Ledger().Reprice(map[string]core.Quote{
		"AAPL": {Ticker: "AAPL", Price: decimal.NewFromInt(100)},
	})
	require.Len(t, before.Positions, 1)

	require.NoError(t, a.ResetAccount(ctx, true))
	assert.False(t, a.storeValuation(before))
	_, ok := a.LastValuation()
	assert.False(t, ok)

	after := a.Valuation(ctx)
	assert.Empty(t, after.Positions)
	got, ok := a.LastValuation()
	require.True(t, ok)
	assert.Equal(t, after.Revision, got.Revision)
}

func TestApp_CheckAlerts(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil, map[string]int64{"MSFT": 390})

	fired, err := a.CheckAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, fired)

	_, err = a.CreateAlert(ctx, "MSFT", core.DirectionBelow, decimal.NewFromInt(400), "")
	require.NoError(t, err)

	fired, err = a.CheckAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "MSFT", fired[0].Ticker)

	fired, err = a.CheckAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestApp_PlaceOrderPersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	a, _ := newTestApp(t, store, map[string]int64{"AAPL": 100})
	m := &recordingMetrics{}
	a.SetMetrics(m)

	trade, err := a.PlaceOrder(ctx, core.SideBuy, "aapl", 10)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", trade.Ticker)

	_, err = a.PlaceOrder(ctx, core.SideSell, "AAPL", 50)
	assert.True(t, errors.Is(err, core.ErrInsufficientShares))

	var acct ledger.Account
	found, err := storage.NewPersister(store, storage.JSON{}, nil).Load(ctx, KeyAccount, &acct)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(1), acct.Revision)
	assert.True(t, acct.Cash.Equal(decimal.NewFromInt(99000)))

	assert.Equal(t, []string{"BUY:filled", "SELL:insufficient_shares"}, m.orders)
}

func TestApp_PlaceOrderStorageFailureKeepsTrade(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	a, err := New(testConfig(), static.New(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)}),
		storage.NewPersister(failingStore{mem}, storage.JSON{}, nil), nil)
	require.NoError(t, err)
	defer a.Stop()

	trade, err := a.PlaceOrder(ctx, core.SideBuy, "AAPL", 1)
	assert.True(t, errors.Is(err, core.ErrStorageFailed))
	assert.NotEmpty(t, trade.ID, "committed trade is still returned")
	assert.Len(t, a.Trades(), 1)
	assert.True(t, a.Ledger().Cash().Equal(decimal.NewFromInt(99900)))
}

func TestApp_ResetAccount(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil, map[string]int64{"AAPL": 100})
	_, err := a.PlaceOrder(ctx, core.SideBuy, "AAPL", 5)
	require.NoError(t, err)

	err = a.ResetAccount(ctx, false)
	assert.True(t, errors.Is(err, core.ErrResetNotConfirmed))
	assert.Len(t, a.Trades(), 1)

	require.NoError(t, a.ResetAccount(ctx, true))
	assert.Empty(t, a.Trades())
	assert.Empty(t, a.Ledger().Positions())
	assert.True(t, a.Ledger().Cash().Equal(decimal.NewFromInt(100000)))
}

func TestApp_Watchlist(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil, nil)

	added, err := a.AddToWatchlist(ctx, " msft ")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = a.AddToWatchlist(ctx, "MSFT")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = a.AddToWatchlist(ctx, "  ")
	assert.True(t, errors.Is(err, core.ErrInvalidTicker))

	_, err = a.AddToWatchlist(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, a.GetWatchlist())

	removed, err := a.RemoveFromWatchlist(ctx, "msft")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = a.RemoveFromWatchlist(ctx, "MSFT")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, []string{"AAPL"}, a.GetWatchlist())
}

func TestApp_TrackedTickers(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil, map[string]int64{"AAPL": 100, "TSLA": 200})

	_, err := a.AddToWatchlist(ctx, "MSFT")
	require.NoError(t, err)
	_, err = a.PlaceOrder(ctx, core.SideBuy, "AAPL", 1)
	require.NoError(t, err)
	_, err = a.CreateAlert(ctx, "TSLA", core.DirectionAbove, decimal.NewFromInt(300), "")
	require.NoError(t, err)
	_, err = a.CreateAlert(ctx, "AAPL", core.DirectionAbove, decimal.NewFromInt(300), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, a.trackedTickers())
}

func TestApp_ConfigureRefresh(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)

	_, err := a.ConfigureRefresh(nil, 7*time.Second)
	assert.True(t, errors.Is(err, core.ErrInvalidInterval))

	on := true
	st, err := a.ConfigureRefresh(&on, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, 30*time.Second, st.Interval)

	off := false
	st, err = a.ConfigureRefresh(&off, 0)
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Equal(t, 30*time.Second, st.Interval)
}

func TestApp_ExportTrades(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil, map[string]int64{"AAPL": 100})
	_, err := a.PlaceOrder(ctx, core.SideBuy, "AAPL", 3)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.ExportTrades(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,ticker,side,quantity,price,realized_pnl", lines[0])
	assert.Contains(t, lines[1], ",AAPL,BUY,3,100.00,")
}
