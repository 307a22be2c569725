package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote [ticker...]",
	Short: "Show current quotes for tickers or the watchlist",
	RunE:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	results := a.Quotes(cmd.Context(), args)
	if len(results) == 0 {
		fmt.Println("No tickers given and the watchlist is empty.")
		return nil
	}

	tickers := make([]string, 0, len(results))
	for t := range results {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tPRICE\tCHANGE\tCHANGE %\tVOLUME\tAS OF\t")
	fmt.Fprintln(w, "------\t-----\t------\t--------\t------\t-----\t")

	for _, t := range tickers {
		r := results[t]
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\t\n", t, errorCode(r.Err))
			continue
		}
		q := r.Quote
		asOf := q.AsOf.Local().Format("2006-01-02 15:04:05")
		if r.Stale {
			asOf += " (stale)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t\n",
			t, formatMoney(q.Price, cfg.Account.Currency),
			formatSignedMoney(q.ChangeAbs, cfg.Account.Currency),
			formatPct(q.ChangePct), q.Volume, asOf)
	}
	return w.Flush()
}

// errorCode renders a coded error as its code, anything else as text.
func errorCode(err error) string {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return err.Error()
}
