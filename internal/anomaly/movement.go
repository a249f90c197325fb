package anomaly

import "github.com/dingeii/binance-signal-bot/internal/market"

// Direction of a 24h price movement.
type Direction string

const (
	Surge  Direction = "surge"
	Plunge Direction = "plunge"
)

const (
	DefaultSurgePct  = 100.0
	DefaultPlungePct = -60.0
)

// Movement is an extreme 24h price change.
type Movement struct {
	Symbol             string
	LastPrice          float64
	PriceChangePercent float64
	Direction          Direction
}

// MovementDetector flags tickers whose 24h change reaches SurgePct or falls
// to PlungePct (inclusive).
type MovementDetector struct {
	SurgePct  float64
	PlungePct float64
}

// Evaluate returns a Movement when the ticker crosses either bound.
func (d MovementDetector) Evaluate(t market.Ticker) (Movement, bool) {
	m := Movement{Symbol: t.Symbol, LastPrice: t.LastPrice, PriceChangePercent: t.PriceChangePercent}
	switch {
	case t.PriceChangePercent >= d.SurgePct:
		m.Direction = Surge
	case t.PriceChangePercent <= d.PlungePct:
		m.Direction = Plunge
	default:
		return Movement{}, false
	}
	return m, true
}

// Scan evaluates every ticker, preserving input order.
func (d MovementDetector) Scan(tickers []market.Ticker) []Movement {
	out := make([]Movement, 0)
	for _, t := range tickers {
		if m, ok := d.Evaluate(t); ok {
			out = append(out, m)
		}
	}
	return out
}
