package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingeii/binance-signal-bot/internal/market"
	"github.com/dingeii/binance-signal-bot/internal/netflow"
)

func sample(v float64) netflow.Sample {
	return netflow.Sample{Symbol: "ETHUSDT", Value: v, ObservedAt: time.Unix(1700000000, 0).UTC()}
}

func TestEvaluateAbsoluteThreshold(t *testing.T) {
	d := Detector{AbsoluteThreshold: 100, Multiplier: 3}

	for _, baseline := range []struct {
		avg float64
		ok  bool
	}{{0, false}, {10, true}, {1000, true}, {-50, true}} {
		alert, ok := d.Evaluate(sample(150), baseline.avg, baseline.ok)
		require.True(t, ok)
		assert.Equal(t, ReasonAbsoluteThreshold, alert.Reason)
		assert.Equal(t, 150.0, alert.CurrentValue)
		assert.Equal(t, baseline.ok, alert.HasBaseline)
	}
}

func TestEvaluateRelativeMultiplier(t *testing.T) {
	d := Detector{AbsoluteThreshold: 100000, Multiplier: 3}

	alert, ok := d.Evaluate(sample(35), 10, true)
	require.True(t, ok)
	assert.Equal(t, ReasonRelativeMultiplier, alert.Reason)
	assert.Equal(t, 10.0, alert.BaselineAverage)
	assert.Equal(t, "ETHUSDT", alert.Symbol)
}

func TestEvaluateNoAlert(t *testing.T) {
	d := Detector{AbsoluteThreshold: 100000, Multiplier: 3}

	_, ok := d.Evaluate(sample(5), 10, true)
	assert.False(t, ok)

	// 恰好等于阈值不触发
	_, ok = d.Evaluate(sample(30), 10, true)
	assert.False(t, ok)
}

func TestEvaluateMissingBaselineSuppressesRelativeOnly(t *testing.T) {
	d := Detector{AbsoluteThreshold: 100, Multiplier: 3}

	_, ok := d.Evaluate(sample(50), 1, false)
	assert.False(t, ok, "relative rule must not fire without history")

	alert, ok := d.Evaluate(sample(101), 0, false)
	require.True(t, ok)
	assert.Equal(t, ReasonAbsoluteThreshold, alert.Reason)
	assert.Zero(t, alert.BaselineAverage)
}

func TestEvaluateIgnoresSellSpikes(t *testing.T) {
	d := Detector{AbsoluteThreshold: 100, Multiplier: 3}

	_, ok := d.Evaluate(sample(-1_000_000), 10, true)
	assert.False(t, ok)
}

func TestNewDetectorDefaults(t *testing.T) {
	d := NewDetector(0, -1)
	assert.Equal(t, DefaultAbsoluteThreshold, d.AbsoluteThreshold)
	assert.Equal(t, DefaultMultiplier, d.Multiplier)
}

func TestMovementDetector(t *testing.T) {
	d := MovementDetector{SurgePct: DefaultSurgePct, PlungePct: DefaultPlungePct}
	tickers := []market.Ticker{
		{Symbol: "AUSDT", PriceChangePercent: 100, LastPrice: 2},
		{Symbol: "BUSDT", PriceChangePercent: 12},
		{Symbol: "CUSDT", PriceChangePercent: -60},
		{Symbol: "DUSDT", PriceChangePercent: -59.9},
	}

	moves := d.Scan(tickers)
	require.Len(t, moves, 2)
	assert.Equal(t, Movement{Symbol: "AUSDT", LastPrice: 2, PriceChangePercent: 100, Direction: Surge}, moves[0])
	assert.Equal(t, Plunge, moves[1].Direction)
	assert.Equal(t, "CUSDT", moves[1].Symbol)
}
