package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dingeii/binance-signal-bot/internal/anomaly"
	"github.com/dingeii/binance-signal-bot/internal/baseline"
	"github.com/dingeii/binance-signal-bot/internal/fetcher"
	"github.com/dingeii/binance-signal-bot/internal/market"
	"github.com/dingeii/binance-signal-bot/internal/netflow"
	"github.com/dingeii/binance-signal-bot/internal/service"
)

// SimulateAlert 使用给定的净流入值跑一个合成周期，并推送到已配置的通道。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier(a.newTelegramBot())
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	symbol := strings.ToUpper(opts.Symbol)
	if symbol == "" {
		symbol = "BTC" + a.Config.Exchange.QuoteAsset
	}
	static := &staticSource{
		ticker: market.Ticker{Symbol: symbol, LastPrice: 1, QuoteVolume: 1},
		flow:   opts.NetFlow,
	}

	// in-memory baseline seeded with the requested average
	bs := baseline.NewStore(baseline.Options{
		Window:     a.Config.Baseline.HistoryWindow,
		MinHistory: a.Config.Baseline.MinHistory,
	}, nil, a.Logger)
	now := time.Now().UTC()
	if opts.Average != 0 {
		for i := 0; i < a.Config.Baseline.MinHistory; i++ {
			bs.Append(symbol, opts.Average, now)
		}
	}

	svc := service.New(service.Options{
		Market: a.Config.Exchange.Market + " (simulated)",
		TopN:   a.Config.Report.TopN,
	}, service.Deps{
		Universe:   static,
		Source:     static,
		Pool:       fetcher.NewPool(fetcher.PoolOptions{Workers: 1, Timeout: a.Config.Fetch.Timeout}, a.Logger),
		Calculator: netflow.Calculator{},
		Baseline:   bs,
		Detector:   anomaly.NewDetector(a.Config.Detector.AbsoluteThreshold, a.Config.Detector.Multiplier),
		Notifier:   notifier,
	}, a.Logger)

	rep, err := svc.RunCycle(ctx, now)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("cycle_id", rep.CycleID).Int("alerts", len(rep.Alerts)).Msg("simulated cycle dispatched")
	return nil
}

type staticSource struct {
	ticker market.Ticker
	flow   float64
}

func (s *staticSource) Universe(context.Context) ([]market.Ticker, error) {
	return []market.Ticker{s.ticker}, nil
}

func (s *staticSource) Fetch(context.Context, string) (market.Telemetry, error) {
	if s.flow < 0 {
		return market.Trades{{Quantity: -s.flow, SellerInitiated: true}}, nil
	}
	return market.Trades{{Quantity: s.flow}}, nil
}

var (
	_ fetcher.UniverseProvider = (*staticSource)(nil)
	_ fetcher.TelemetrySource  = (*staticSource)(nil)
)
