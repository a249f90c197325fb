package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dingeii/binance-signal-bot/internal/app"
)

var (
	showLimit  int
	showSymbol string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the tracked net-flow baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Symbol: showSymbol,
		}

		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

var alertsLimit int

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Display recently audited alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Alerts(cmd.Context(), cmd.OutOrStdout(), app.AlertsOptions{Limit: alertsLimit})
	},
}

var (
	pruneMaxAge      time.Duration
	pruneAlertsAfter time.Duration
	pruneDryRun      bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop stale baseline symbols and old alert records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Prune(cmd.Context(), cmd.OutOrStdout(), app.PruneOptions{
			MaxAge:          pruneMaxAge,
			AlertsOlderThan: pruneAlertsAfter,
			DryRun:          pruneDryRun,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 0, "Maximum symbols to display (0 = all)")
	showCmd.Flags().StringVar(&showSymbol, "symbol", "", "Only display this symbol")

	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 20, "Number of alerts to display")

	pruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 0, "Drop symbols not updated within this window (defaults to config)")
	pruneCmd.Flags().DurationVar(&pruneAlertsAfter, "alerts-older-than", 0, "Also delete audited alerts older than this")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Report what would be removed without writing")
}
