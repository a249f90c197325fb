package cli

import (
	"errors"
	"math"

	"github.com/spf13/cobra"

	"github.com/dingeii/binance-signal-bot/internal/app"
)

var (
	simulateSymbol  string
	simulateNetFlow float64
	simulateAverage float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次净流入异常并推送报告",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateNetFlow == 0 || math.IsNaN(simulateNetFlow) || math.IsInf(simulateNetFlow, 0) {
			return errors.New("--net-flow 必须为非零有限值")
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Symbol:  simulateSymbol,
			NetFlow: simulateNetFlow,
			Average: simulateAverage,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "合成周期使用的交易对")
	simulateCmd.Flags().Float64Var(&simulateNetFlow, "net-flow", 0, "本周期净流入值")
	simulateCmd.Flags().Float64Var(&simulateAverage, "average", 0, "预置的基线均值 (0 表示无基线)")
}
