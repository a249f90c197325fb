package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/dingeii/binance-signal-bot/internal/market"
)

const (
	DefaultDepthLevels     = 50
	DefaultTradeWindow     = 5 * time.Minute
	DefaultTradeLimit      = 1000
	DefaultQuoteAsset      = "USDT"
	DefaultUniverseRetries = 3
)

// BinanceOptions parameterise the Binance REST source.
type BinanceOptions struct {
	Market  market.Kind
	BaseURL string
	Mode    market.Mode

	DepthLevels int
	TradeWindow time.Duration
	TradeLimit  int

	QuoteAsset      string
	ExcludeSuffixes []string
	ExcludeBases    []string
	UniverseRetries int

	HTTPClient *http.Client
}

// Binance lists the symbol universe from 24h tickers and fetches per-symbol
// aggregated trades or depth, over either the spot or USDT-M futures API.
type Binance struct {
	opts   BinanceOptions
	api    exchangeAPI
	logger zerolog.Logger
	now    func() time.Time
	// retryPolicy builds the backoff schedule for one Universe call.
	retryPolicy func() backoff.BackOff
}

var (
	_ UniverseProvider = (*Binance)(nil)
	_ TelemetrySource  = (*Binance)(nil)
)

// NewBinance constructs the source. Only public endpoints are used.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) (*Binance, error) {
	if opts.Market == "" {
		opts.Market = market.KindFutures
	}
	if opts.Mode == "" {
		opts.Mode = market.ModeTrades
	}
	if opts.DepthLevels <= 0 {
		opts.DepthLevels = DefaultDepthLevels
	}
	if opts.TradeWindow <= 0 {
		opts.TradeWindow = DefaultTradeWindow
	}
	if opts.TradeLimit <= 0 {
		opts.TradeLimit = DefaultTradeLimit
	}
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = DefaultQuoteAsset
	}
	if opts.UniverseRetries < 0 {
		opts.UniverseRetries = 0
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	var api exchangeAPI
	switch opts.Market {
	case market.KindFutures:
		api = newFuturesAPI(baseURL, opts.HTTPClient)
	case market.KindSpot:
		api = newSpotAPI(baseURL, opts.HTTPClient)
	default:
		return nil, fmt.Errorf("unsupported market %q", opts.Market)
	}
	switch opts.Mode {
	case market.ModeTrades, market.ModeDepth:
	default:
		return nil, fmt.Errorf("unsupported fetch mode %q", opts.Mode)
	}

	return &Binance{
		opts: opts,
		api:  api,
		logger: logger.With().
			Str("component", "binance_fetcher").
			Str("market", string(opts.Market)).
			Logger(),
		now:         time.Now,
		retryPolicy: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}, nil
}

// Universe returns the filtered ticker list, retrying transient failures
// with exponential backoff.
func (b *Binance) Universe(ctx context.Context) ([]market.Ticker, error) {
	var raw []rawTicker
	op := func() error {
		var err error
		raw, err = b.api.tickers(ctx)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, ErrMalformed)) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(b.retryPolicy(), uint64(b.opts.UniverseRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		b.logger.Warn().Err(err).Dur("retry_in", wait).Msg("ticker fetch failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("fetch universe: %w", err)
	}

	tickers := make([]market.Ticker, 0, len(raw))
	for _, r := range raw {
		t, err := r.toTicker()
		if err != nil {
			b.logger.Debug().Err(err).Str("symbol", r.Symbol).Msg("skip unparsable ticker")
			continue
		}
		tickers = append(tickers, t)
	}

	return b.filter(tickers), nil
}

func (b *Binance) filter(tickers []market.Ticker) []market.Ticker {
	quote := strings.ToUpper(b.opts.QuoteAsset)
	excluded := lo.SliceToMap(b.opts.ExcludeBases, func(base string) (string, struct{}) {
		return strings.ToUpper(base), struct{}{}
	})
	return lo.Filter(tickers, func(t market.Ticker, _ int) bool {
		symbol := strings.ToUpper(t.Symbol)
		if !strings.HasSuffix(symbol, quote) || symbol == quote {
			return false
		}
		for _, suffix := range b.opts.ExcludeSuffixes {
			if suffix != "" && strings.Contains(symbol, strings.ToUpper(suffix)) {
				return false
			}
		}
		_, skip := excluded[strings.TrimSuffix(symbol, quote)]
		return !skip
	})
}

// Fetch returns market.Trades in trades mode and market.OrderBook in depth mode.
func (b *Binance) Fetch(ctx context.Context, symbol string) (market.Telemetry, error) {
	if b.opts.Mode == market.ModeDepth {
		return b.fetchDepth(ctx, symbol)
	}
	return b.fetchTrades(ctx, symbol)
}

func (b *Binance) fetchTrades(ctx context.Context, symbol string) (market.Telemetry, error) {
	since := b.now().Add(-b.opts.TradeWindow)
	raw, err := b.api.aggTrades(ctx, symbol, since, b.opts.TradeLimit)
	if err != nil {
		return nil, fmt.Errorf("agg trades %s: %w", symbol, err)
	}
	trades := make(market.Trades, 0, len(raw))
	for _, r := range raw {
		qty, err := parseDecimal(r.Quantity)
		if err != nil {
			return nil, fmt.Errorf("agg trade quantity %s: %w", symbol, err)
		}
		trades = append(trades, market.Trade{
			Quantity:        qty,
			SellerInitiated: r.IsBuyerMaker,
			Time:            time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return trades, nil
}

func (b *Binance) fetchDepth(ctx context.Context, symbol string) (market.Telemetry, error) {
	raw, err := b.api.depth(ctx, symbol, b.opts.DepthLevels)
	if err != nil {
		return nil, fmt.Errorf("depth %s: %w", symbol, err)
	}
	bids, err := toLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("depth bids %s: %w", symbol, err)
	}
	asks, err := toLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("depth asks %s: %w", symbol, err)
	}
	return market.OrderBook{Bids: bids, Asks: asks}, nil
}

func toLevels(raw []rawLevel) ([]market.Level, error) {
	levels := make([]market.Level, 0, len(raw))
	for _, r := range raw {
		price, err := parseDecimal(r.Price)
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal(r.Quantity)
		if err != nil {
			return nil, err
		}
		levels = append(levels, market.Level{Price: price, Quantity: qty})
	}
	return levels, nil
}

func (r rawTicker) toTicker() (market.Ticker, error) {
	change, err := parseDecimal(r.PriceChangePercent)
	if err != nil {
		return market.Ticker{}, fmt.Errorf("priceChangePercent: %w", err)
	}
	last, err := parseDecimal(r.LastPrice)
	if err != nil {
		return market.Ticker{}, fmt.Errorf("lastPrice: %w", err)
	}
	volume, err := parseDecimal(r.Volume)
	if err != nil {
		return market.Ticker{}, fmt.Errorf("volume: %w", err)
	}
	quoteVolume, err := parseDecimal(r.QuoteVolume)
	if err != nil {
		return market.Ticker{}, fmt.Errorf("quoteVolume: %w", err)
	}
	return market.Ticker{
		Symbol:             r.Symbol,
		PriceChangePercent: change,
		LastPrice:          last,
		Volume:             volume,
		QuoteVolume:        quoteVolume,
	}, nil
}

// parseDecimal converts an exchange numeric string; failures wrap ErrMalformed.
func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	return d.InexactFloat64(), nil
}
