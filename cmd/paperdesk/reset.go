package main

import (
	"errors"
	"fmt"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe positions and trades and restore the initial balance",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm the reset")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return fmt.Errorf("refusing to reset without --yes")
	}

	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	err = a.ResetAccount(cmd.Context(), true)
	if err != nil && !errors.Is(err, core.ErrStorageFailed) {
		return err
	}

	fmt.Printf("Account reset. Cash: %s\n", formatMoney(a.Ledger().Cash(), cfg.Account.Currency))
	return err
}
