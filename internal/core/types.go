package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single point-in-time price observation for a ticker.
// Quotes are values: a newer observation replaces, never mutates, an older one.
type Quote struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	ChangeAbs decimal.Decimal `json:"change_abs"`
	ChangePct decimal.Decimal `json:"change_pct"`
	Volume    int64           `json:"volume"`
	AsOf      time.Time       `json:"as_of"`
	Source    string          `json:"source,omitempty"`
}

// IsValid checks if the quote has required fields
func (q Quote) IsValid() bool {
	return q.Ticker != "" && q.Price.IsPositive()
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Direction is the crossing direction an alert watches for.
type Direction string

const (
	DirectionAbove Direction = "ABOVE"
	DirectionBelow Direction = "BELOW"
)

// ParseDirection accepts "above"/"below" in any case.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectionAbove:
		return DirectionAbove, true
	case DirectionBelow:
		return DirectionBelow, true
	}
	return "", false
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// AlertTriggered is emitted once when an alert crosses its target.
type AlertTriggered struct {
	AlertID     string          `json:"alert_id"`
	Ticker      string          `json:"ticker"`
	Direction   Direction       `json:"direction"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Price       decimal.Decimal `json:"price"`
	Note        string          `json:"note,omitempty"`
	TriggeredAt time.Time       `json:"triggered_at"`
}
