package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/spf13/cobra"
)

var tradeCmd = &cobra.Command{
	Use:   "trade <buy|sell> <ticker> <quantity>",
	Short: "Place a market order at the current price",
	Args:  cobra.ExactArgs(3),
	RunE:  runTrade,
}

func init() {
	rootCmd.AddCommand(tradeCmd)
}

func runTrade(cmd *cobra.Command, args []string) error {
	side, ok := core.ParseSide(args[0])
	if !ok {
		return fmt.Errorf("side must be buy or sell, got %q", args[0])
	}
	qty, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args[2], err)
	}

	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	trade, err := a.PlaceOrder(cmd.Context(), side, args[1], qty)
	if err != nil && !errors.Is(err, core.ErrStorageFailed) {
		return err
	}

	cur := cfg.Account.Currency
	fmt.Printf("%s %d %s @ %s = %s\n",
		trade.Side, trade.Quantity, trade.Ticker,
		formatMoney(trade.Price, cur), formatMoney(trade.Total, cur))
	if trade.RealizedPnL != nil {
		fmt.Printf("Realized P&L: %s\n", formatSignedMoney(*trade.RealizedPnL, cur))
	}
	fmt.Printf("Cash:         %s\n", formatMoney(a.Ledger().Cash(), cur))

	// the trade stands even when it could not be saved
	return err
}
