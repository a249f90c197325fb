package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/dingeii/binance-signal-bot/internal/alerting"
	"github.com/dingeii/binance-signal-bot/internal/anomaly"
	"github.com/dingeii/binance-signal-bot/internal/baseline"
	"github.com/dingeii/binance-signal-bot/internal/fetcher"
	"github.com/dingeii/binance-signal-bot/internal/market"
	"github.com/dingeii/binance-signal-bot/internal/metrics"
	"github.com/dingeii/binance-signal-bot/internal/netflow"
	"github.com/dingeii/binance-signal-bot/internal/ranking"
	"github.com/dingeii/binance-signal-bot/internal/report"
	"github.com/dingeii/binance-signal-bot/internal/scheduler"
	"github.com/dingeii/binance-signal-bot/internal/storage"
)

// ErrCycleSkipped is returned by RunCycle when another instance holds the
// advisory lock.
var ErrCycleSkipped = errors.New("cycle skipped: advisory lock held elsewhere")

const persistTimeout = 15 * time.Second

// Options tune a Service.
type Options struct {
	Market string
	TopN   int
	// MaxFetchSymbols limits telemetry fetches to the symbols with the
	// highest quote volume. Price rankings and movements always use the
	// whole universe. 0 fetches every symbol.
	MaxFetchSymbols int
	LockKey         int64
	Charts          bool
}

// Deps are the collaborators of a Service. Universe, Source, Pool and
// Baseline are required; the rest may be nil.
type Deps struct {
	Universe   fetcher.UniverseProvider
	Source     fetcher.TelemetrySource
	Pool       *fetcher.Pool
	Calculator netflow.Calculator
	Baseline   *baseline.Store
	Detector   anomaly.Detector
	Movements  *anomaly.MovementDetector

	AlertStore storage.AlertStore
	Locker     storage.AdvisoryLocker
	Notifier   alerting.Notifier
	Photos     alerting.PhotoSender
	Metrics    *metrics.Recorder
	Scheduler  *scheduler.Scheduler
}

// Service orchestrates one signal cycle: fetch, compute, detect, persist, report.
type Service struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger

	mu     sync.RWMutex
	latest *report.Report
}

// New constructs the signal service.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	if opts.TopN <= 0 {
		opts.TopN = report.DefaultTopN
	}
	return &Service{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the periodic cycle loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle 是调度器回调：执行一个周期并丢弃报告。
func (s *Service) ProcessCycle(ctx context.Context, slot time.Time) error {
	_, err := s.RunCycle(ctx, slot)
	if errors.Is(err, ErrCycleSkipped) {
		s.logger.Debug().Time("slot", slot).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	return err
}

// LatestReport returns the report of the most recent completed cycle.
func (s *Service) LatestReport() (report.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return report.Report{}, false
	}
	return *s.latest, true
}

// RunCycle executes one full cycle stamped at. Fetch failures never fail the
// cycle; they are carried in the report. An error is returned only when the
// lock cannot be taken or the baseline cannot be persisted.
func (s *Service) RunCycle(ctx context.Context, at time.Time) (report.Report, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return report.Report{}, err
	}
	if !proceed {
		return report.Report{}, ErrCycleSkipped
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	at = at.UTC()
	cycleID := uuid.NewString()
	log := s.logger.With().Str("cycle_id", cycleID).Logger()

	tickers, err := s.deps.Universe.Universe(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch symbol universe")
		rep := report.NoData(cycleID, s.opts.Market, at, "ticker fetch failed")
		s.publish(ctx, log, rep, started)
		return rep, nil
	}
	tickers = uniqueTickers(tickers)
	if len(tickers) == 0 {
		log.Warn().Msg("symbol universe is empty")
		rep := report.NoData(cycleID, s.opts.Market, at, "symbol universe is empty")
		s.publish(ctx, log, rep, started)
		return rep, nil
	}

	store := s.deps.Baseline
	persist := true
	if err := store.Load(ctx); err != nil {
		// saving would overwrite the unreadable snapshot
		log.Error().Err(err).Msg("failed to load baseline, continuing without persisted history")
		persist = false
	}

	fetchSet := s.fetchSet(tickers)
	symbols := lo.Map(fetchSet, func(t market.Ticker, _ int) string { return t.Symbol })
	results := s.deps.Pool.FetchAll(ctx, symbols, s.deps.Source.Fetch)

	samples := make([]netflow.Sample, 0, len(fetchSet))
	alerts := make([]anomaly.Alert, 0)
	failures := make(map[string]int)
	failed := 0
	for _, t := range fetchSet {
		res, ok := results[t.Symbol]
		if !ok || !res.OK() {
			kind := fetcher.FailureTransport
			var cause error = errors.New("no result")
			if ok && res.Err != nil {
				kind, cause = res.Err.Kind, res.Err.Err
			}
			failures[string(kind)]++
			failed++
			log.Warn().Str("symbol", t.Symbol).Str("kind", string(kind)).Err(cause).Msg("symbol fetch failed")
			continue
		}

		sample := s.deps.Calculator.Sample(t.Symbol, res.Telemetry, at)
		avg, hasBaseline := store.Average(t.Symbol)
		if alert, hit := s.deps.Detector.Evaluate(sample, avg, hasBaseline); hit {
			alerts = append(alerts, alert)
			log.Info().Str("symbol", alert.Symbol).
				Float64("net_flow", alert.CurrentValue).
				Float64("baseline_avg", alert.BaselineAverage).
				Str("reason", string(alert.Reason)).
				Msg("net-flow alert")
		}
		store.Append(t.Symbol, sample.Value, at)
		samples = append(samples, sample)
	}

	if pruned := store.Prune(at); len(pruned) > 0 {
		log.Info().Strs("symbols", pruned).Msg("pruned stale baseline records")
	}

	var saveErr error
	if persist {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		if err := store.Save(saveCtx); err != nil {
			saveErr = fmt.Errorf("save baseline: %w", err)
			log.Error().Err(err).Msg("failed to persist baseline")
		}
		cancel()
	}

	var movements []anomaly.Movement
	if s.deps.Movements != nil {
		movements = s.deps.Movements.Scan(tickers)
	}

	rep := report.Assemble(report.Input{
		CycleID:     cycleID,
		Market:      s.opts.Market,
		GeneratedAt: at,
		TopN:        s.opts.TopN,
		Tickers:     tickers,
		Samples:     samples,
		Failures:    failures,
		Failed:      failed,
		Alerts:      alerts,
		Movements:   movements,
	})

	s.audit(ctx, log, cycleID, alerts)
	s.deps.Metrics.RecordFetch("ok", len(samples))
	for _, kind := range sortedKeys(failures) {
		s.deps.Metrics.RecordFetch(kind, failures[kind])
	}
	for _, a := range alerts {
		s.deps.Metrics.RecordAlert(string(a.Reason))
	}
	s.deps.Metrics.SetBaselineSymbols(store.Len())

	s.publish(ctx, log, rep, started)
	log.Info().
		Str("status", string(rep.Status)).
		Int("symbols", len(tickers)).
		Int("fetch_set", len(fetchSet)).
		Int("fetched", len(samples)).
		Int("failed", failed).
		Int("alerts", len(alerts)).
		Int("movements", len(movements)).
		Dur("took", time.Since(started)).
		Msg("cycle complete")
	return rep, saveErr
}

// publish records the cycle outcome and hands the report to every sink.
// Sink errors are logged only.
func (s *Service) publish(ctx context.Context, log zerolog.Logger, rep report.Report, started time.Time) {
	s.mu.Lock()
	s.latest = &rep
	s.mu.Unlock()

	s.deps.Metrics.RecordCycle(string(rep.Status), time.Since(started), rep.GeneratedAt)

	if s.deps.Notifier != nil {
		note := alerting.Notification{CycleID: rep.CycleID, Title: report.Caption(rep), Text: report.Render(rep)}
		if err := s.deps.Notifier.Notify(ctx, note); err != nil {
			log.Error().Err(err).Msg("failed to dispatch report")
		}
	}

	if !s.opts.Charts || s.deps.Photos == nil || !rep.HasData() {
		return
	}
	charts := []struct {
		name    string
		title   string
		entries []report.PriceEntry
	}{
		{"gainers.png", "Top gainers (24h %)", rep.Gainers},
		{"losers.png", "Top losers (24h %)", rep.Losers},
	}
	for _, c := range charts {
		png, err := report.RenderChart(c.title, c.entries)
		if err != nil {
			if !errors.Is(err, report.ErrEmptyChart) {
				log.Error().Err(err).Str("chart", c.name).Msg("failed to render chart")
			}
			continue
		}
		if err := s.deps.Photos.SendPhoto(ctx, c.name, png, c.title+" | "+report.Caption(rep)); err != nil {
			log.Error().Err(err).Str("chart", c.name).Msg("failed to send chart")
		}
	}
}

func (s *Service) audit(ctx context.Context, log zerolog.Logger, cycleID string, alerts []anomaly.Alert) {
	if s.deps.AlertStore == nil {
		return
	}
	for _, a := range alerts {
		record := storage.AlertRecord{
			CycleID:         cycleID,
			Symbol:          a.Symbol,
			Reason:          string(a.Reason),
			CurrentValue:    decimal.NewFromFloat(a.CurrentValue),
			BaselineAverage: decimal.NewFromFloat(a.BaselineAverage),
			HasBaseline:     a.HasBaseline,
			ObservedAt:      a.ObservedAt,
		}
		if _, err := s.deps.AlertStore.InsertAlert(ctx, record); err != nil {
			if errors.Is(err, storage.ErrNotConfigured) {
				return
			}
			log.Error().Err(err).Str("symbol", a.Symbol).Msg("failed to persist alert record")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// fetchSet returns the tickers whose telemetry is fetched, keeping universe
// order.
func (s *Service) fetchSet(tickers []market.Ticker) []market.Ticker {
	n := s.opts.MaxFetchSymbols
	if n <= 0 || len(tickers) <= n {
		return tickers
	}
	liquid := ranking.TopN(tickers, func(t market.Ticker) float64 { return t.QuoteVolume }, n, ranking.Top)
	keep := lo.SliceToMap(liquid, func(t market.Ticker) (string, struct{}) { return t.Symbol, struct{}{} })
	return lo.Filter(tickers, func(t market.Ticker, _ int) bool {
		_, ok := keep[t.Symbol]
		return ok
	})
}

// uniqueTickers drops repeated symbols, keeping the first occurrence.
func uniqueTickers(tickers []market.Ticker) []market.Ticker {
	return lo.UniqBy(tickers, func(t market.Ticker) string { return t.Symbol })
}

func sortedKeys(m map[string]int) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
