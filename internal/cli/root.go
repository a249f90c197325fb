package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dingeii/binance-signal-bot/internal/app"
	"github.com/dingeii/binance-signal-bot/internal/config"
	"github.com/dingeii/binance-signal-bot/internal/logging"
)

var (
	cfgFile    string
	logLevel   string
	appHandle  *app.App
	closeLogFn func() error
)

var rootCmd = &cobra.Command{
	Use:           "signalbot",
	Short:         "Binance net-flow signal and ranking bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Name() == versionCmd.Name() {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, closer, err := logging.NewLogger(cfg.Logging, cfg.App.Name)
		if err != nil {
			return err
		}
		closeLogFn = closer
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeLogFn != nil {
			return closeLogFn()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
