// Package ledger keeps the paper-trading account: cash, positions and the
// trade history, and values it against current quotes.
package ledger

import (
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
)

// DefaultInitialBalance is the starting cash of a new account.
var DefaultInitialBalance = decimal.NewFromInt(100000)

// Position represents a long holding in a security.
type Position struct {
	// Ticker is the upper-case ticker symbol.
	Ticker string `json:"ticker"`
	// Quantity is the number of shares held, always positive.
	Quantity int64 `json:"quantity"`
	// AverageCost is the weighted average purchase price per share.
	AverageCost decimal.Decimal `json:"average_cost"`
	// OpenedAt is when the position was first bought.
	OpenedAt time.Time `json:"opened_at"`
}

// CostBasis returns Quantity * AverageCost.
func (p Position) CostBasis() decimal.Decimal {
	return p.AverageCost.Mul(decimal.NewFromInt(p.Quantity))
}

// Trade is one executed order. Trades are append-only.
type Trade struct {
	// ID is a unique trade identifier.
	ID string `json:"id"`
	// Timestamp is when the trade executed, UTC.
	Timestamp time.Time `json:"timestamp"`
	// Ticker is the upper-case ticker symbol.
	Ticker string `json:"ticker"`
	// Side is BUY or SELL.
	Side core.Side `json:"side"`
	// Quantity is the number of shares traded.
	Quantity int64 `json:"quantity"`
	// Price is the execution price per share.
	Price decimal.Decimal `json:"price"`
	// Total is Quantity * Price.
	Total decimal.Decimal `json:"total"`
	// RealizedPnL is set on SELL trades only.
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
}

// Account is a point-in-time copy of the ledger state. It is also the
// persisted form of the ledger.
type Account struct {
	// InitialBalance is the cash the account started with.
	InitialBalance decimal.Decimal `json:"initial_balance"`
	// Cash is the uninvested balance, never negative.
	Cash decimal.Decimal `json:"cash"`
	// Positions are the open holdings sorted by ticker.
	Positions []Position `json:"positions"`
	// Trades is the full history in execution order.
	Trades []Trade `json:"trades"`
	// CreatedAt is when the account was created or last reset.
	CreatedAt time.Time `json:"created_at"`
	// Revision increments on every committed mutation.
	Revision uint64 `json:"revision"`
}

// PositionValue is a position valued against a quote. Price-dependent fields
// are nil when no quote was available for the ticker.
type PositionValue struct {
	Position
	CostBasis        decimal.Decimal  `json:"cost_basis"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	MarketValue      *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPnL    *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	UnrealizedPnLPct *decimal.Decimal `json:"unrealized_pnl_pct,omitempty"`
}

// Priced reports whether a quote was available for the position.
func (v PositionValue) Priced() bool {
	return v.Price != nil
}

// Valuation is the account marked to market.
type Valuation struct {
	AsOf      time.Time       `json:"as_of"`
	Cash      decimal.Decimal `json:"cash"`
	Positions []PositionValue `json:"positions"`
	// MarketValue sums the priced positions only.
	MarketValue decimal.Decimal `json:"market_value"`
	// Equity is Cash + MarketValue.
	Equity        decimal.Decimal `json:"equity"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	// TotalPnL is Equity - InitialBalance.
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	TotalPnLPct decimal.Decimal `json:"total_pnl_pct"`
	// Complete is false when at least one position had no quote, in which
	// case Equity understates the account.
	Complete bool   `json:"complete"`
	Revision uint64 `json:"revision"`
}

// ResetConfirmation must be ConfirmReset for Reset to proceed.
type ResetConfirmation struct {
	confirmed bool
}

// ConfirmReset authorizes an account reset.
var ConfirmReset = ResetConfirmation{confirmed: true}
