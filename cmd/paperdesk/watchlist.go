package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/spf13/cobra"
)

var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Show or edit the watchlist",
	RunE:  runWatchlistList,
}

var watchlistAddCmd = &cobra.Command{
	Use:   "add <ticker...>",
	Short: "Add tickers to the watchlist",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatchlistAdd,
}

var watchlistRemoveCmd = &cobra.Command{
	Use:     "rm <ticker...>",
	Aliases: []string{"remove"},
	Short:   "Remove tickers from the watchlist",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runWatchlistRemove,
}

func init() {
	rootCmd.AddCommand(watchlistCmd)
	watchlistCmd.AddCommand(watchlistAddCmd)
	watchlistCmd.AddCommand(watchlistRemoveCmd)
}

func runWatchlistList(cmd *cobra.Command, args []string) error {
	a, _, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	tickers := a.GetWatchlist()
	if len(tickers) == 0 {
		fmt.Println("Watchlist is empty.")
		return nil
	}
	fmt.Println(strings.Join(tickers, " "))
	return nil
}

func runWatchlistAdd(cmd *cobra.Command, args []string) error {
	a, _, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	var errs []error
	for _, t := range args {
		added, err := a.AddToWatchlist(cmd.Context(), t)
		if err != nil && !errors.Is(err, core.ErrStorageFailed) {
			errs = append(errs, err)
			continue
		}
		if added {
			fmt.Printf("Added %s\n", core.NormalizeTicker(t))
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runWatchlistRemove(cmd *cobra.Command, args []string) error {
	a, _, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	var errs []error
	for _, t := range args {
		removed, err := a.RemoveFromWatchlist(cmd.Context(), t)
		if err != nil && !errors.Is(err, core.ErrStorageFailed) {
			errs = append(errs, err)
			continue
		}
		if removed {
			fmt.Printf("Removed %s\n", core.NormalizeTicker(t))
		} else {
			fmt.Printf("%s is not on the watchlist\n", core.NormalizeTicker(t))
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
