package netflow

import (
	"time"

	"github.com/dingeii/binance-signal-bot/internal/market"
)

// DefaultLevels is the number of book levels per side summed in depth mode.
const DefaultLevels = 50

// Sample is one net-flow observation.
type Sample struct {
	Symbol     string
	Value      float64
	ObservedAt time.Time
}

// Calculator reduces raw telemetry to a signed net-flow scalar.
type Calculator struct {
	// Levels caps the order-book levels summed per side; <= 0 sums all levels.
	Levels int
}

// NewCalculator returns a Calculator summing the top levels of each book side.
func NewCalculator(levels int) Calculator {
	return Calculator{Levels: levels}
}

// Compute returns buy pressure minus sell pressure. Empty or unknown
// telemetry yields exactly 0.
func (c Calculator) Compute(t market.Telemetry) float64 {
	switch v := t.(type) {
	case market.Trades:
		return tradesNet(v)
	case *market.Trades:
		if v == nil {
			return 0
		}
		return tradesNet(*v)
	case market.OrderBook:
		return c.bookNet(v)
	case *market.OrderBook:
		if v == nil {
			return 0
		}
		return c.bookNet(*v)
	default:
		return 0
	}
}

// Sample computes the net-flow for symbol and stamps it with at.
func (c Calculator) Sample(symbol string, t market.Telemetry, at time.Time) Sample {
	return Sample{Symbol: symbol, Value: c.Compute(t), ObservedAt: at}
}

func tradesNet(trades market.Trades) float64 {
	var buy, sell float64
	for _, tr := range trades {
		if tr.SellerInitiated {
			sell += tr.Quantity
		} else {
			buy += tr.Quantity
		}
	}
	return buy - sell
}

func (c Calculator) bookNet(book market.OrderBook) float64 {
	return sumLevels(book.Bids, c.Levels) - sumLevels(book.Asks, c.Levels)
}

func sumLevels(levels []market.Level, limit int) float64 {
	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	var total float64
	for _, l := range levels {
		total += l.Quantity
	}
	return total
}
