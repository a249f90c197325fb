package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dingeii/binance-signal-bot/internal/alerting"
	"github.com/dingeii/binance-signal-bot/internal/anomaly"
	"github.com/dingeii/binance-signal-bot/internal/baseline"
	"github.com/dingeii/binance-signal-bot/internal/config"
	"github.com/dingeii/binance-signal-bot/internal/fetcher"
	"github.com/dingeii/binance-signal-bot/internal/market"
	"github.com/dingeii/binance-signal-bot/internal/metrics"
	"github.com/dingeii/binance-signal-bot/internal/netflow"
	"github.com/dingeii/binance-signal-bot/internal/scheduler"
	"github.com/dingeii/binance-signal-bot/internal/server"
	"github.com/dingeii/binance-signal-bot/internal/service"
	"github.com/dingeii/binance-signal-bot/internal/storage"
	"github.com/dingeii/binance-signal-bot/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// components are the long-lived pieces one command needs.
type components struct {
	service  *service.Service
	baseline *baseline.Store
	store    *storage.Store
	registry *prometheus.Registry
	closers  []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

type buildOptions struct {
	scheduled bool
	notify    bool
}

func (a *App) newSource() (*fetcher.Binance, error) {
	ex := a.Config.Exchange
	return fetcher.NewBinance(fetcher.BinanceOptions{
		Market:          market.Kind(ex.Market),
		BaseURL:         ex.BaseURL,
		Mode:            market.Mode(ex.Mode),
		DepthLevels:     ex.DepthLevels,
		TradeWindow:     ex.TradeWindow,
		TradeLimit:      ex.TradeLimit,
		QuoteAsset:      ex.QuoteAsset,
		ExcludeSuffixes: ex.ExcludeSuffixes,
		ExcludeBases:    ex.ExcludeBases,
		UniverseRetries: ex.UniverseRetries,
	}, a.Logger)
}

func (a *App) newPool() *fetcher.Pool {
	fc := a.Config.Fetch
	var limiter *rate.Limiter
	if fc.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(fc.RequestsPerSecond), max(fc.Burst, 1))
	}
	return fetcher.NewPool(fetcher.PoolOptions{
		Workers: fc.Concurrency,
		Timeout: fc.Timeout,
		Limiter: limiter,
	}, a.Logger)
}

// newTelegramBot returns the Bot API client shared by the text and photo
// sinks, or nil when Telegram is off.
func (a *App) newTelegramBot() *alerting.TelegramBot {
	tg := a.Config.Alerting.Telegram
	if !a.Config.Alerting.Enabled || !tg.Enabled {
		return nil
	}
	return alerting.NewTelegramBot(tg.BotToken, tg.ChatID, tg.APIBase, a.Config.Alerting.Timeout)
}

func (a *App) newNotifier(bot *alerting.TelegramBot) alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	var sinks []alerting.Notifier
	if bot != nil {
		sinks = append(sinks, alerting.NewTelegramNotifier(bot, a.Logger))
	}
	if dc := a.Config.Alerting.Discord; dc.Enabled {
		sinks = append(sinks, alerting.NewDiscordNotifier(dc.WebhookURL, a.Config.Alerting.Timeout, a.Logger))
	}
	if len(sinks) == 0 {
		return nil
	}
	return alerting.NewMulti(a.Logger, sinks...)
}

func (a *App) newPhotoSender(bot *alerting.TelegramBot) alerting.PhotoSender {
	if bot == nil || !a.Config.Report.Charts {
		return nil
	}
	return alerting.NewTelegramPhotoSender(bot, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if !a.Config.DatabaseEnabled() {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// newPersister selects the baseline backend. A nil persister keeps the
// baseline in memory only.
func (a *App) newPersister(ctx context.Context, store *storage.Store) (baseline.Persister, func(), error) {
	bc := a.Config.Baseline
	switch bc.Backend {
	case "memory":
		return nil, nil, nil
	case "redis":
		p, err := baseline.NewRedisPersister(ctx, baseline.RedisOptions{
			Addr:     bc.Redis.Addr,
			Password: bc.Redis.Password,
			DB:       bc.Redis.DB,
			Key:      bc.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "postgres":
		if store == nil {
			return nil, nil, errors.New("baseline backend postgres requires database.dsn")
		}
		return store.BaselinePersister(), nil, nil
	default:
		return baseline.NewFilePersister(bc.Path), nil, nil
	}
}

func (a *App) newBaseline(ctx context.Context, store *storage.Store, maxAge time.Duration) (*baseline.Store, func(), error) {
	persister, closer, err := a.newPersister(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	bs := baseline.NewStore(baseline.Options{
		Window:     a.Config.Baseline.HistoryWindow,
		MinHistory: a.Config.Baseline.MinHistory,
		MaxAge:     maxAge,
	}, persister, a.Logger)
	return bs, closer, nil
}

func (a *App) newMovements() *anomaly.MovementDetector {
	if !a.Config.Movement.Enabled {
		return nil
	}
	return &anomaly.MovementDetector{SurgePct: a.Config.Movement.SurgePct, PlungePct: a.Config.Movement.PlungePct}
}

func (a *App) build(ctx context.Context, opts buildOptions) (*components, error) {
	c := &components{registry: prometheus.NewRegistry()}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		c.closers = append(c.closers, closeStore)
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit and advisory lock disabled")
	}
	c.store = store

	bs, closeBaseline, err := a.newBaseline(ctx, store, a.Config.Baseline.MaxAge)
	if err != nil {
		c.Close()
		return nil, err
	}
	if closeBaseline != nil {
		c.closers = append(c.closers, closeBaseline)
	}
	c.baseline = bs

	source, err := a.newSource()
	if err != nil {
		c.Close()
		return nil, err
	}

	deps := service.Deps{
		Universe:   source,
		Source:     source,
		Pool:       a.newPool(),
		Calculator: netflow.Calculator{Levels: a.Config.Exchange.DepthLevels},
		Baseline:   bs,
		Detector:   anomaly.NewDetector(a.Config.Detector.AbsoluteThreshold, a.Config.Detector.Multiplier),
		Movements:  a.newMovements(),
		Metrics:    metrics.New(c.registry),
	}
	if store != nil {
		deps.Locker = store
		if a.Config.Database.AuditAlerts {
			deps.AlertStore = store
		}
	}
	if opts.notify {
		bot := a.newTelegramBot()
		deps.Notifier = a.newNotifier(bot)
		deps.Photos = a.newPhotoSender(bot)
	}
	if opts.scheduled {
		sched, err := scheduler.New(scheduler.Options{
			Interval:       a.Config.Scheduler.Interval,
			Align:          a.Config.Scheduler.AlignToInterval,
			StartupDelay:   a.Config.Scheduler.StartupDelay,
			RunImmediately: a.Config.Scheduler.RunImmediately,
		}, a.Logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		deps.Scheduler = sched
	}

	c.service = service.New(service.Options{
		Market:          a.Config.Exchange.Market,
		TopN:            a.Config.Report.TopN,
		MaxFetchSymbols: a.Config.Fetch.MaxSymbols,
		LockKey:         a.Config.Scheduler.AdvisoryLockKey,
		Charts:          a.Config.Report.Charts,
	}, deps, a.Logger)
	return c, nil
}

// Run executes the long-running signal service, plus the status server when
// enabled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := a.build(ctx, buildOptions{scheduled: true, notify: true})
	if err != nil {
		return err
	}
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.service.Run(gctx) })
	if a.Config.Server.Enabled {
		srv := server.New(server.Options{ListenAddr: a.Config.Server.ListenAddr, Gatherer: c.registry}, c.service, a.Logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	a.Logger.Info().
		Str("version", version.String()).
		Str("market", a.Config.Exchange.Market).
		Str("mode", a.Config.Exchange.Mode).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting signal service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return fmt.Errorf("run service: %w", err)
	}

	a.Logger.Info().Msg("signal service stopped")
	return nil
}

// CycleOptions configure a one-off cycle.
type CycleOptions struct {
	Notify bool
	JSON   bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Symbol string
}

// AlertsOptions configure the alerts command.
type AlertsOptions struct {
	Limit int
}

// PruneOptions configure the prune command.
type PruneOptions struct {
	MaxAge          time.Duration
	AlertsOlderThan time.Duration
	DryRun          bool
}

// ExportOptions hold parameters for exporting baseline history.
type ExportOptions struct {
	CSVPath    string
	PNGPath    string
	Symbols    []string
	MaxSymbols int
}

// SimulateOptions describe a synthetic net-flow reading.
type SimulateOptions struct {
	Symbol  string
	NetFlow float64
	Average float64
}
