package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/newthinker/paperdesk/internal/alert"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	alertNote   string
	alertStatus string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	RunE:  runAlertsList,
}

var alertsAddCmd = &cobra.Command{
	Use:   "add <ticker> <above|below> <price>",
	Short: "Create a one-shot price alert",
	Args:  cobra.ExactArgs(3),
	RunE:  runAlertsAdd,
}

var alertsRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete an alert",
	Args:    cobra.ExactArgs(1),
	RunE:    runAlertsRemove,
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate active alerts against current quotes",
	RunE:  runAlertsCheck,
}

var alertsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all triggered alerts",
	RunE:  runAlertsClear,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAddCmd)
	alertsCmd.AddCommand(alertsRemoveCmd)
	alertsCmd.AddCommand(alertsCheckCmd)
	alertsCmd.AddCommand(alertsClearCmd)

	alertsListCmd.Flags().StringVar(&alertStatus, "status", "", "filter by status (active, triggered)")
	alertsAddCmd.Flags().StringVar(&alertNote, "note", "", "free-form note attached to the alert")
}

func runAlertsList(cmd *cobra.Command, args []string) error {
	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	var alerts []alert.Alert
	switch alertStatus {
	case "":
		alerts = a.Alerts().List()
	case "active":
		alerts = a.Alerts().Active()
	case "triggered":
		alerts = a.Alerts().Triggered()
	default:
		return fmt.Errorf("unknown status %q", alertStatus)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts found.")
		return nil
	}
	printAlerts(alerts, cfg.Account.Currency)
	return nil
}

func runAlertsAdd(cmd *cobra.Command, args []string) error {
	dir, ok := core.ParseDirection(args[1])
	if !ok {
		return fmt.Errorf("direction must be above or below, got %q", args[1])
	}
	target, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[2], err)
	}

	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	created, err := a.CreateAlert(cmd.Context(), args[0], dir, target, alertNote)
	if err != nil && !errors.Is(err, core.ErrStorageFailed) {
		return err
	}
	fmt.Printf("Created alert %s: %s %s %s\n",
		created.ID, created.Ticker, created.Direction, formatMoney(created.TargetPrice, cfg.Account.Currency))
	return err
}

func runAlertsRemove(cmd *cobra.Command, args []string) error {
	a, _, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	deleted, err := a.DeleteAlert(cmd.Context(), args[0])
	if err != nil && !errors.Is(err, core.ErrStorageFailed) {
		return err
	}
	if !deleted {
		return core.Errorf(core.ErrAlertNotFound, "no alert with id %s", args[0])
	}
	fmt.Printf("Deleted alert %s\n", args[0])
	return err
}

func runAlertsCheck(cmd *cobra.Command, args []string) error {
	a, cfg, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	fired, err := a.CheckAlerts(cmd.Context())
	if err != nil {
		return err
	}
	if len(fired) == 0 {
		fmt.Println("No alerts triggered.")
		return nil
	}
	printAlerts(fired, cfg.Account.Currency)
	return nil
}

func runAlertsClear(cmd *cobra.Command, args []string) error {
	a, _, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	n, err := a.ClearTriggered(cmd.Context())
	if err != nil && !errors.Is(err, core.ErrStorageFailed) {
		return err
	}
	fmt.Printf("Cleared %d triggered alerts\n", n)
	return err
}

func printAlerts(alerts []alert.Alert, cur string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTICKER\tDIRECTION\tTARGET\tSTATUS\tTRIGGERED AT\tPRICE\tNOTE\t")
	fmt.Fprintln(w, "--\t------\t---------\t------\t------\t------------\t-----\t----\t")
	for _, al := range alerts {
		triggeredAt := "-"
		if al.TriggeredAt != nil {
			triggeredAt = al.TriggeredAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			al.ID, al.Ticker, al.Direction, formatMoney(al.TargetPrice, cur), al.Status,
			triggeredAt, optional(al.TriggeredPrice, inCurrency(cur, formatMoney)), al.Note)
	}
	w.Flush()
}
