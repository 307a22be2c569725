package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CSVHeader is the header row of the trade export.
var CSVHeader = []string{"timestamp", "ticker", "side", "quantity", "price", "realized_pnl"}

// WriteCSV writes the trade history to w in execution order.
func (l *Ledger) WriteCSV(w io.Writer) error {
	return WriteTradesCSV(w, l.Trades())
}

// WriteTradesCSV writes trades as CSV with CSVHeader. realized_pnl is empty
// for BUY trades.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, t := range trades {
		realized := ""
		if t.RealizedPnL != nil {
			realized = t.RealizedPnL.StringFixed(2)
		}
		row := []string{
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Ticker,
			string(t.Side),
			strconv.FormatInt(t.Quantity, 10),
			t.Price.StringFixed(2),
			realized,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing trade %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
