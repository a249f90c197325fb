package fetcher

import (
	"context"

	"github.com/dingeii/binance-signal-bot/internal/market"
)

// UniverseProvider lists the tradable symbols with their 24h statistics.
type UniverseProvider interface {
	Universe(ctx context.Context) ([]market.Ticker, error)
}

// TelemetrySource retrieves the raw net-flow telemetry of one symbol.
type TelemetrySource interface {
	Fetch(ctx context.Context, symbol string) (market.Telemetry, error)
}

// FetchFunc adapts a single-symbol fetch for the pool.
type FetchFunc func(ctx context.Context, symbol string) (market.Telemetry, error)
