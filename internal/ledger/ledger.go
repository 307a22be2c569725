package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/pricecache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Pricer resolves the current price of a ticker.
type Pricer interface {
	Lookup(ctx context.Context, ticker string) pricecache.Result
}

// Ledger owns a single paper-trading account. One mutex serializes every
// mutation so cash, positions and trades always agree.
type Ledger struct {
	pricer Pricer
	logger *zap.Logger

	initial   decimal.Decimal
	cash      decimal.Decimal
	positions map[string]*Position
	trades    []Trade
	createdAt time.Time
	revision  uint64

	// For testing: allow time advancement
	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// New creates a ledger with a fresh account funded with initialBalance.
func New(pricer Pricer, initialBalance decimal.Decimal, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !initialBalance.IsPositive() {
		initialBalance = DefaultInitialBalance
	}
	l := &Ledger{
		pricer:    pricer,
		logger:    logger,
		initial:   initialBalance,
		cash:      initialBalance,
		positions: make(map[string]*Position),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	l.createdAt = l.now().UTC()
	return l
}

// Execute places a market order for quantity shares of ticker at the
// current price. On any error the account is unchanged.
func (l *Ledger) Execute(ctx context.Context, side core.Side, ticker string, quantity int64) (Trade, error) {
	ticker = core.NormalizeTicker(ticker)
	if ticker == "" {
		return Trade{}, core.Errorf(core.ErrInvalidOrder, "ticker is required")
	}
	side, ok := core.ParseSide(string(side))
	if !ok {
		return Trade{}, core.Errorf(core.ErrInvalidOrder, "side must be BUY or SELL")
	}
	if quantity <= 0 {
		return Trade{}, core.Errorf(core.ErrInvalidOrder, "quantity must be positive, got %d", quantity)
	}

	// price resolution may block on the source; never hold the account lock here
	price, err := l.currentPrice(ctx, ticker)
	if err != nil {
		return Trade{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var trade Trade
	switch side {
	case core.SideBuy:
		trade, err = l.buy(ticker, quantity, price)
	case core.SideSell:
		trade, err = l.sell(ticker, quantity, price)
	}
	if err != nil {
		return Trade{}, err
	}

	l.trades = append(l.trades, trade)
	l.revision++

	l.logger.Info("order executed",
		zap.String("side", string(side)),
		zap.String("ticker", ticker),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
		zap.String("cash", l.cash.StringFixed(2)),
	)
	return cloneTrade(trade), nil
}

func (l *Ledger) currentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if l.pricer == nil {
		return decimal.Zero, core.Errorf(core.ErrPriceUnavailable, "no price source configured")
	}
	r := l.pricer.Lookup(ctx, ticker)
	if r.Err != nil {
		return decimal.Zero, core.WrapError(core.ErrPriceUnavailable, r.Err)
	}
	if r.Stale {
		return decimal.Zero, core.Errorf(core.ErrPriceUnavailable, "quote for %s is stale (as of %s)",
			ticker, r.Quote.AsOf.Format(time.RFC3339))
	}
	if !r.Quote.Price.IsPositive() {
		return decimal.Zero, core.Errorf(core.ErrPriceUnavailable, "invalid price %s for %s", r.Quote.Price, ticker)
	}
	return r.Quote.Price, nil
}

// buy must be called with l.mu held.
func (l *Ledger) buy(ticker string, quantity int64, price decimal.Decimal) (Trade, error) {
	qty := decimal.NewFromInt(quantity)
	required := price.Mul(qty)
	if l.cash.LessThan(required) {
		return Trade{}, core.Errorf(core.ErrInsufficientFunds, "need %s, have %s",
			required.StringFixed(2), l.cash.StringFixed(2))
	}

	now := l.now().UTC()
	l.cash = l.cash.Sub(required)

	pos, exists := l.positions[ticker]
	if !exists {
		pos = &Position{Ticker: ticker, OpenedAt: now}
		l.positions[ticker] = pos
	}
	// new avg cost = (old_cost * old_qty + price * qty) / (old_qty + qty)
	totalCost := pos.CostBasis().Add(required)
	pos.Quantity += quantity
	pos.AverageCost = totalCost.Div(decimal.NewFromInt(pos.Quantity))

	return Trade{
		ID:        l.newID(),
		Timestamp: now,
		Ticker:    ticker,
		Side:      core.SideBuy,
		Quantity:  quantity,
		Price:     price,
		Total:     required,
	}, nil
}

// sell must be called with l.mu held.
func (l *Ledger) sell(ticker string, quantity int64, price decimal.Decimal) (Trade, error) {
	pos, exists := l.positions[ticker]
	if !exists {
		return Trade{}, core.Errorf(core.ErrInsufficientShares, "no position in %s", ticker)
	}
	if pos.Quantity < quantity {
		return Trade{}, core.Errorf(core.ErrInsufficientShares, "have %d, trying to sell %d", pos.Quantity, quantity)
	}

	qty := decimal.NewFromInt(quantity)
	proceeds := price.Mul(qty)
	realized := price.Sub(pos.AverageCost).Mul(qty)

	l.cash = l.cash.Add(proceeds)
	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		delete(l.positions, ticker)
	}

	return Trade{
		ID:          l.newID(),
		Timestamp:   l.now().UTC(),
		Ticker:      ticker,
		Side:        core.SideSell,
		Quantity:    quantity,
		Price:       price,
		Total:       proceeds,
		RealizedPnL: &realized,
	}, nil
}

// Reprice values the account against quotes. Positions without a quote are
// reported unpriced and make the valuation incomplete.
func (l *Ledger) Reprice(quotes map[string]core.Quote) Valuation {
	acct := l.Account()

	v := Valuation{
		AsOf:          l.now().UTC(),
		Cash:          acct.Cash,
		Positions:     make([]PositionValue, 0, len(acct.Positions)),
		MarketValue:   decimal.Zero,
		RealizedPnL:   realizedTotal(acct.Trades),
		UnrealizedPnL: decimal.Zero,
		Complete:      true,
		Revision:      acct.Revision,
	}

	for _, p := range acct.Positions {
		pv := PositionValue{Position: p, CostBasis: p.CostBasis()}
		q, ok := quotes[p.Ticker]
		if !ok || !q.Price.IsPositive() {
			v.Complete = false
			v.Positions = append(v.Positions, pv)
			continue
		}

		price := q.Price
		mv := price.Mul(decimal.NewFromInt(p.Quantity))
		unrealized := mv.Sub(pv.CostBasis)
		pv.Price = &price
		pv.MarketValue = &mv
		pv.UnrealizedPnL = &unrealized
		if pv.CostBasis.IsPositive() {
			pct := unrealized.Div(pv.CostBasis).Mul(hundred).Round(4)
			pv.UnrealizedPnLPct = &pct
		}

		v.MarketValue = v.MarketValue.Add(mv)
		v.UnrealizedPnL = v.UnrealizedPnL.Add(unrealized)
		v.Positions = append(v.Positions, pv)
	}

	v.Equity = v.Cash.Add(v.MarketValue)
	v.TotalPnL = v.Equity.Sub(acct.InitialBalance)
	if acct.InitialBalance.IsPositive() {
		v.TotalPnLPct = v.TotalPnL.Div(acct.InitialBalance).Mul(hundred).Round(4)
	}
	return v
}

// Reset restores the account to its initial balance with no positions or
// trades. It requires ConfirmReset.
func (l *Ledger) Reset(confirm ResetConfirmation) error {
	if !confirm.confirmed {
		return core.ErrResetNotConfirmed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = l.initial
	l.positions = make(map[string]*Position)
	l.trades = nil
	l.createdAt = l.now().UTC()
	l.revision++

	l.logger.Warn("account reset", zap.String("initial_balance", l.initial.StringFixed(2)))
	return nil
}

// Account returns a copy of the current account state.
func (l *Ledger) Account() Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	trades := make([]Trade, len(l.trades))
	for i, t := range l.trades {
		trades[i] = cloneTrade(t)
	}
	return Account{
		InitialBalance: l.initial,
		Cash:           l.cash,
		Positions:      l.sortedPositions(),
		Trades:         trades,
		CreatedAt:      l.createdAt,
		Revision:       l.revision,
	}
}

// Cash returns the uninvested balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Revision returns the current mutation counter.
func (l *Ledger) Revision() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revision
}

// Positions returns open positions sorted by ticker.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedPositions()
}

// Position returns the open position in ticker.
func (l *Ledger) Position(ticker string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[core.NormalizeTicker(ticker)]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Tickers returns the tickers of open positions.
func (l *Ledger) Tickers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.positions))
	for t := range l.positions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Trades returns the trade history in execution order.
func (l *Ledger) Trades() []Trade {
	return l.Account().Trades
}

// Snapshot returns the persisted form of the ledger.
func (l *Ledger) Snapshot() Account {
	return l.Account()
}

// Restore replaces the ledger state with a. The snapshot must be internally
// consistent: replaying its trades from the initial balance must reproduce
// its cash and positions. Nothing changes on error.
func (l *Ledger) Restore(a Account) error {
	if !a.InitialBalance.IsPositive() {
		return core.Errorf(core.ErrInvalidSnapshot, "initial balance must be positive")
	}
	if a.Cash.IsNegative() {
		return core.Errorf(core.ErrInvalidSnapshot, "negative cash %s", a.Cash)
	}

	positions := make(map[string]*Position, len(a.Positions))
	for _, p := range a.Positions {
		p.Ticker = core.NormalizeTicker(p.Ticker)
		if p.Quantity <= 0 {
			return core.Errorf(core.ErrInvalidSnapshot, "position %s has non-positive quantity", p.Ticker)
		}
		if _, dup := positions[p.Ticker]; dup {
			return core.Errorf(core.ErrInvalidSnapshot, "duplicate position %s", p.Ticker)
		}
		p.OpenedAt = p.OpenedAt.UTC()
		pos := p
		positions[p.Ticker] = &pos
	}

	trades := make([]Trade, len(a.Trades))
	for i, t := range a.Trades {
		t = cloneTrade(t)
		t.Timestamp = t.Timestamp.UTC()
		trades[i] = t
	}

	state, err := Replay(a.InitialBalance, trades)
	if err != nil {
		return err
	}
	if !state.Cash.Equal(a.Cash) {
		return core.Errorf(core.ErrInvalidSnapshot, "cash %s does not match trade history %s", a.Cash, state.Cash)
	}
	if len(state.Positions) != len(positions) {
		return core.Errorf(core.ErrInvalidSnapshot, "positions do not match trade history")
	}
	for _, rp := range state.Positions {
		p, ok := positions[rp.Ticker]
		if !ok || p.Quantity != rp.Quantity {
			return core.Errorf(core.ErrInvalidSnapshot, "position %s does not match trade history", rp.Ticker)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.initial = a.InitialBalance
	l.cash = a.Cash
	l.positions = positions
	l.trades = trades
	l.createdAt = a.CreatedAt.UTC()
	l.revision = a.Revision
	return nil
}

// ReplayState is the account state derived from a trade history.
type ReplayState struct {
	Cash        decimal.Decimal
	Positions   []Position
	RealizedPnL decimal.Decimal
}

// Replay re-derives cash, positions and realized P&L by applying trades in
// order to a fresh account funded with initial.
func Replay(initial decimal.Decimal, trades []Trade) (ReplayState, error) {
	cash := initial
	realized := decimal.Zero
	positions := make(map[string]*Position)

	for i, t := range trades {
		if t.Quantity <= 0 || !t.Price.IsPositive() {
			return ReplayState{}, core.Errorf(core.ErrInvalidOrder, "trade %d (%s) has invalid quantity or price", i, t.ID)
		}
		qty := decimal.NewFromInt(t.Quantity)
		value := t.Price.Mul(qty)

		switch t.Side {
		case core.SideBuy:
			if cash.LessThan(value) {
				return ReplayState{}, core.Errorf(core.ErrInsufficientFunds, "trade %d (%s): need %s, have %s",
					i, t.ID, value.StringFixed(2), cash.StringFixed(2))
			}
			cash = cash.Sub(value)
			pos, ok := positions[t.Ticker]
			if !ok {
				pos = &Position{Ticker: t.Ticker, OpenedAt: t.Timestamp}
				positions[t.Ticker] = pos
			}
			total := pos.CostBasis().Add(value)
			pos.Quantity += t.Quantity
			pos.AverageCost = total.Div(decimal.NewFromInt(pos.Quantity))
		case core.SideSell:
			pos, ok := positions[t.Ticker]
			if !ok || pos.Quantity < t.Quantity {
				return ReplayState{}, core.Errorf(core.ErrInsufficientShares, "trade %d (%s) sells more %s than held", i, t.ID, t.Ticker)
			}
			cash = cash.Add(value)
			realized = realized.Add(t.Price.Sub(pos.AverageCost).Mul(qty))
			pos.Quantity -= t.Quantity
			if pos.Quantity == 0 {
				delete(positions, t.Ticker)
			}
		default:
			return ReplayState{}, core.Errorf(core.ErrInvalidOrder, "trade %d (%s) has unknown side %q", i, t.ID, t.Side)
		}
	}

	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return ReplayState{Cash: cash, Positions: out, RealizedPnL: realized}, nil
}

// IsBusinessRule reports whether err is a rejected order rather than a
// caller or dependency failure.
func IsBusinessRule(err error) bool {
	return errors.Is(err, core.ErrInsufficientFunds) || errors.Is(err, core.ErrInsufficientShares)
}

// sortedPositions must be called with l.mu held.
func (l *Ledger) sortedPositions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func realizedTotal(trades []Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if t.RealizedPnL != nil {
			total = total.Add(*t.RealizedPnL)
		}
	}
	return total
}

func cloneTrade(t Trade) Trade {
	if t.RealizedPnL != nil {
		r := *t.RealizedPnL
		t.RealizedPnL = &r
	}
	return t
}
