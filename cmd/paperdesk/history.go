package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyCSV   bool
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show trade history, newest first",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyCSV, "csv", false, "write the full history as CSV in execution order")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show at most n trades (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	if historyCSV {
		return a.ExportTrades(os.Stdout)
	}

	trades := a.Trades()
	if len(trades) == 0 {
		fmt.Println("No trades found.")
		return nil
	}

	cur := cfg.Account.Currency
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTICKER\tSIDE\tQTY\tPRICE\tTOTAL\tREALIZED\t")
	fmt.Fprintln(w, "----\t------\t----\t---\t-----\t-----\t--------\t")

	shown := 0
	for i := len(trades) - 1; i >= 0; i-- {
		if historyLimit > 0 && shown == historyLimit {
			break
		}
		t := trades[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t\n",
			t.Timestamp.Local().Format("2006-01-02 15:04"), t.Ticker, t.Side, t.Quantity,
			formatMoney(t.Price, cur), formatMoney(t.Total, cur),
			optional(t.RealizedPnL, inCurrency(cur, formatSignedMoney)))
		shown++
	}
	return w.Flush()
}
