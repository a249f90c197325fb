package cli

import (
	"github.com/spf13/cobra"

	"github.com/dingeii/binance-signal-bot/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic signal service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var (
	cycleNotify bool
	cycleJSON   bool
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single cycle and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunOnce(cmd.Context(), cmd.OutOrStdout(), app.CycleOptions{
			Notify: cycleNotify,
			JSON:   cycleJSON,
		})
	},
}

func init() {
	cycleCmd.Flags().BoolVar(&cycleNotify, "notify", false, "Also push the report to the configured channels")
	cycleCmd.Flags().BoolVar(&cycleJSON, "json", false, "Print the report as JSON instead of Markdown")
}
