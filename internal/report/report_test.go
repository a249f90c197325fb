package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingeii/binance-signal-bot/internal/anomaly"
	"github.com/dingeii/binance-signal-bot/internal/market"
	"github.com/dingeii/binance-signal-bot/internal/netflow"
)

var at = time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)

func sampleInput() Input {
	return Input{
		CycleID:     "c1",
		Market:      "futures",
		GeneratedAt: at,
		TopN:        2,
		Tickers: []market.Ticker{
			{Symbol: "AUSDT", PriceChangePercent: 5, LastPrice: 1},
			{Symbol: "BUSDT", PriceChangePercent: -3, LastPrice: 2},
			{Symbol: "CUSDT", PriceChangePercent: 5, LastPrice: 3},
			{Symbol: "DUSDT", PriceChangePercent: -70, LastPrice: 0.01},
		},
		Samples: []netflow.Sample{
			{Symbol: "AUSDT", Value: 12000},
			{Symbol: "BUSDT", Value: -40},
			{Symbol: "CUSDT", Value: 50},
		},
		Failed:   1,
		Failures: map[string]int{"timeout": 1},
		Alerts: []anomaly.Alert{
			{Symbol: "AUSDT", CurrentValue: 12000, Reason: anomaly.ReasonAbsoluteThreshold},
		},
		Movements: []anomaly.Movement{
			{Symbol: "DUSDT", PriceChangePercent: -70, LastPrice: 0.01, Direction: anomaly.Plunge},
		},
	}
}

func TestAssembleRanks(t *testing.T) {
	r := Assemble(sampleInput())

	require.Equal(t, StatusOK, r.Status)
	assert.Equal(t, 4, r.UniverseSize)
	assert.Equal(t, 3, r.Fetched)
	assert.Equal(t, 1, r.Failed)

	require.Len(t, r.Gainers, 2)
	assert.Equal(t, "AUSDT", r.Gainers[0].Symbol)
	assert.Equal(t, "CUSDT", r.Gainers[1].Symbol, "ties keep universe order")
	assert.Equal(t, "DUSDT", r.Losers[0].Symbol)

	assert.Equal(t, []FlowEntry{{"AUSDT", 12000}, {"CUSDT", 50}}, r.NetBuyers)
	assert.Equal(t, []FlowEntry{{"BUSDT", -40}, {"CUSDT", 50}}, r.NetSellers)

	require.Len(t, r.Alerts, 1)
	assert.Equal(t, "absolute_threshold", r.Alerts[0].Reason)
	require.Len(t, r.Movements, 1)
	assert.Equal(t, "plunge", r.Movements[0].Direction)
}

func TestAssembleAllFailedIsNoData(t *testing.T) {
	in := sampleInput()
	in.Samples = nil
	in.Alerts = nil

	r := Assemble(in)
	assert.Equal(t, StatusNoData, r.Status)
	assert.False(t, r.HasData())
	assert.NotEmpty(t, r.Reason)
	assert.Empty(t, r.NetBuyers)
	assert.Empty(t, r.Alerts)

	require.Len(t, r.Gainers, 2, "price rankings come from tickers, not samples")
	assert.Equal(t, "AUSDT", r.Gainers[0].Symbol)
	assert.Equal(t, "DUSDT", r.Losers[0].Symbol)
	require.Len(t, r.Movements, 1)
	assert.Equal(t, "DUSDT", r.Movements[0].Symbol)
}

func TestRenderNoDataKeepsMarketSections(t *testing.T) {
	in := sampleInput()
	in.Samples = nil
	in.Alerts = nil
	out := Render(Assemble(in))

	assert.Contains(t, out, "No data available: every symbol fetch failed.")
	assert.Contains(t, out, "`DUSDT` -70.00% @ 0.01 (plunge)")
	assert.Contains(t, out, "*Top losers (24h)*\n1. `DUSDT` -70.00% @ 0.01")
	assert.NotContains(t, out, "No alerts")
	assert.NotContains(t, out, "Net buyers")
}

func TestAssembleEmptyUniverse(t *testing.T) {
	r := Assemble(Input{CycleID: "c2", GeneratedAt: at})
	assert.Equal(t, StatusNoData, r.Status)
	assert.Equal(t, "symbol universe is empty", r.Reason)
}

func TestRenderDistinguishesNoDataFromNoAlerts(t *testing.T) {
	in := sampleInput()
	in.Alerts = nil
	quiet := Render(Assemble(in))
	assert.Contains(t, quiet, "No alerts this cycle.")
	assert.NotContains(t, quiet, "No data available")

	empty := Render(NoData("c3", "spot", at, "ticker fetch failed"))
	assert.Contains(t, empty, "No data available: ticker fetch failed.")
	assert.NotContains(t, empty, "No alerts")
}

func TestRenderSections(t *testing.T) {
	out := Render(Assemble(sampleInput()))

	assert.Contains(t, out, "*Binance signal report (futures)*")
	assert.Contains(t, out, "`2024-05-01 12:05 UTC`")
	assert.Contains(t, out, "Symbols: 4, fetched: 3, failed: 1 (timeout 1)")
	assert.Contains(t, out, "`AUSDT` 12000 (absolute threshold)")
	assert.Contains(t, out, "*Top gainers (24h)*\n1. `AUSDT` +5.00% @ 1")
	assert.Contains(t, out, "*Net sellers*\n1. `BUSDT` -40.00")
	assert.Contains(t, out, "`DUSDT` -70.00% @ 0.01 (plunge)")
}

func TestRenderChart(t *testing.T) {
	png, err := RenderChart("gainers", []PriceEntry{
		{Symbol: "AUSDT", PriceChangePercent: 12.5},
		{Symbol: "BUSDT", PriceChangePercent: -4},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = RenderChart("empty", nil)
	assert.ErrorIs(t, err, ErrEmptyChart)
}

func TestRenderChartFlatValues(t *testing.T) {
	_, err := RenderChart("flat", []PriceEntry{{Symbol: "A", PriceChangePercent: 0}, {Symbol: "B", PriceChangePercent: 0}})
	assert.NoError(t, err)
}
