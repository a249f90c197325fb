package cli

import (
	"github.com/spf13/cobra"

	"github.com/dingeii/binance-signal-bot/internal/app"
)

var (
	exportPNGPath    string
	exportCSVPath    string
	exportSymbols    []string
	exportMaxSymbols int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export baseline history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:    exportPNGPath,
			CSVPath:    exportCSVPath,
			Symbols:    exportSymbols,
			MaxSymbols: exportMaxSymbols,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringSliceVar(&exportSymbols, "symbols", nil, "Symbols to export (defaults to all)")
	exportCmd.Flags().IntVar(&exportMaxSymbols, "max-symbols", 0, "Maximum series in the PNG chart")
}
