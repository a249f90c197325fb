package market

import "time"

// Ticker is a 24h rolling statistics snapshot for one symbol.
type Ticker struct {
	Symbol             string
	PriceChangePercent float64
	LastPrice          float64
	Volume             float64
	QuoteVolume        float64
}

// Telemetry is the raw per-symbol data a net-flow value is derived from.
// Exactly one of Trades or OrderBook is produced per fetch mode.
type Telemetry interface {
	Empty() bool
}

// Trade is one aggregated trade.
type Trade struct {
	Quantity float64
	// SellerInitiated is true when the taker was a seller, i.e. the trade
	// matched a resting buy order (Binance isBuyerMaker).
	SellerInitiated bool
	Time            time.Time
}

// Trades is a trade-list telemetry sample.
type Trades []Trade

// Empty reports whether there are no trades.
func (t Trades) Empty() bool { return len(t) == 0 }

// Level is a price level of an order book side.
type Level struct {
	Price    float64
	Quantity float64
}

// OrderBook is a depth snapshot, best levels first.
type OrderBook struct {
	Bids []Level
	Asks []Level
}

// Empty reports whether both sides are empty.
func (b OrderBook) Empty() bool { return len(b.Bids) == 0 && len(b.Asks) == 0 }

// Mode selects which telemetry representation is fetched.
type Mode string

const (
	ModeTrades Mode = "trades"
	ModeDepth  Mode = "depth"
)

// Kind selects the Binance market.
type Kind string

const (
	KindFutures Kind = "futures"
	KindSpot    Kind = "spot"
)

var (
	_ Telemetry = Trades(nil)
	_ Telemetry = OrderBook{}
)
