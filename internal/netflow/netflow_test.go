package netflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dingeii/binance-signal-bot/internal/market"
)

func TestComputeEmpty(t *testing.T) {
	calc := NewCalculator(DefaultLevels)

	assert.Equal(t, 0.0, calc.Compute(market.Trades{}))
	assert.Equal(t, 0.0, calc.Compute(market.Trades(nil)))
	assert.Equal(t, 0.0, calc.Compute(market.OrderBook{}))
	assert.Equal(t, 0.0, calc.Compute(nil))

	var book *market.OrderBook
	assert.Equal(t, 0.0, calc.Compute(book))
}

func TestComputeTrades(t *testing.T) {
	trades := market.Trades{
		{Quantity: 3},
		{Quantity: 1.5, SellerInitiated: true},
		{Quantity: 2},
		{Quantity: 4, SellerInitiated: true},
	}

	assert.InDelta(t, -0.5, NewCalculator(0).Compute(trades), 1e-12)
	assert.InDelta(t, -0.5, NewCalculator(0).Compute(&trades), 1e-12)
}

func TestComputeOrderBookLevels(t *testing.T) {
	book := market.OrderBook{
		Bids: []market.Level{{Price: 10, Quantity: 5}, {Price: 9, Quantity: 5}, {Price: 8, Quantity: 100}},
		Asks: []market.Level{{Price: 11, Quantity: 2}, {Price: 12, Quantity: 1}},
	}

	testCases := []struct {
		name   string
		levels int
		want   float64
	}{
		{name: "top two", levels: 2, want: 10 - 3},
		{name: "all levels", levels: 0, want: 110 - 3},
		{name: "limit above depth", levels: 50, want: 110 - 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, NewCalculator(tc.levels).Compute(book), 1e-12)
		})
	}
}

func TestSample(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewCalculator(1).Sample("BTCUSDT", market.OrderBook{Bids: []market.Level{{Quantity: 7}}}, at)

	assert.Equal(t, Sample{Symbol: "BTCUSDT", Value: 7, ObservedAt: at}, s)
}
