package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/newthinker/paperdesk/internal/ledger"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the account valued at current prices",
	RunE:  runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func runAccount(cmd *cobra.Command, args []string) error {
	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	v := a.Valuation(cmd.Context())
	printValuation(v, cfg.Account.Currency)
	return nil
}

func printValuation(v ledger.Valuation, cur string) {
	fmt.Println("Account Summary")
	fmt.Println("---------------")
	fmt.Printf("Cash:            %s\n", formatMoney(v.Cash, cur))
	fmt.Printf("Market Value:    %s\n", formatMoney(v.MarketValue, cur))
	fmt.Printf("Equity:          %s\n", formatMoney(v.Equity, cur))
	fmt.Printf("Realized P&L:    %s\n", formatSignedMoney(v.RealizedPnL, cur))
	fmt.Printf("Unrealized P&L:  %s\n", formatSignedMoney(v.UnrealizedPnL, cur))
	fmt.Printf("Total P&L:       %s (%s)\n", formatSignedMoney(v.TotalPnL, cur), formatPct(v.TotalPnLPct))
	if !v.Complete {
		fmt.Println("Note: some positions have no current quote; equity is understated.")
	}
	fmt.Println()

	if len(v.Positions) == 0 {
		fmt.Println("No positions.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tQTY\tAVG COST\tPRICE\tMKT VALUE\tP&L\tP&L %\t")
	fmt.Fprintln(w, "------\t---\t--------\t-----\t---------\t---\t-----\t")
	for _, p := range v.Positions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			p.Ticker, p.Quantity, formatMoney(p.AverageCost, cur),
			optional(p.Price, inCurrency(cur, formatMoney)),
			optional(p.MarketValue, inCurrency(cur, formatMoney)),
			optional(p.UnrealizedPnL, inCurrency(cur, formatSignedMoney)),
			optional(p.UnrealizedPnLPct, formatPct))
	}
	w.Flush()
}
