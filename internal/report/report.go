package report

import (
	"time"

	"github.com/samber/lo"

	"github.com/dingeii/binance-signal-bot/internal/anomaly"
	"github.com/dingeii/binance-signal-bot/internal/market"
	"github.com/dingeii/binance-signal-bot/internal/netflow"
	"github.com/dingeii/binance-signal-bot/internal/ranking"
)

// DefaultTopN is the length of every ranked list.
const DefaultTopN = 10

// Status tells whether a cycle produced data.
type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
)

// PriceEntry is one row of a price-change ranking.
type PriceEntry struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// FlowEntry is one row of a net-flow ranking.
type FlowEntry struct {
	Symbol  string  `json:"symbol"`
	NetFlow float64 `json:"net_flow"`
}

// AlertEntry is a reported net-flow alert.
type AlertEntry struct {
	Symbol          string  `json:"symbol"`
	CurrentValue    float64 `json:"current_value"`
	BaselineAverage float64 `json:"baseline_average"`
	HasBaseline     bool    `json:"has_baseline"`
	Reason          string  `json:"reason"`
}

// MovementEntry is a reported extreme price move.
type MovementEntry struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	Direction          string  `json:"direction"`
}

// Report is everything one cycle tells the sinks.
type Report struct {
	CycleID     string    `json:"cycle_id"`
	Market      string    `json:"market"`
	GeneratedAt time.Time `json:"generated_at"`
	Status      Status    `json:"status"`
	// Reason explains a no_data status.
	Reason string `json:"reason,omitempty"`

	UniverseSize int            `json:"universe_size"`
	Fetched      int            `json:"fetched"`
	Failed       int            `json:"failed"`
	Failures     map[string]int `json:"failures,omitempty"`

	Gainers    []PriceEntry    `json:"gainers"`
	Losers     []PriceEntry    `json:"losers"`
	NetBuyers  []FlowEntry     `json:"net_buyers"`
	NetSellers []FlowEntry     `json:"net_sellers"`
	Alerts     []AlertEntry    `json:"alerts"`
	Movements  []MovementEntry `json:"movements"`
}

// HasData reports whether the cycle produced rankings.
func (r Report) HasData() bool {
	return r.Status == StatusOK
}

// Input is the raw material of one cycle.
type Input struct {
	CycleID     string
	Market      string
	GeneratedAt time.Time
	TopN        int

	Tickers  []market.Ticker
	Samples  []netflow.Sample
	Failures map[string]int
	Failed   int

	Alerts    []anomaly.Alert
	Movements []anomaly.Movement
}

// Assemble ranks the inputs. A cycle with no successful sample is no_data but
// still carries the price rankings and movements taken from the tickers.
func Assemble(in Input) Report {
	topN := in.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	r := Report{
		CycleID:      in.CycleID,
		Market:       in.Market,
		GeneratedAt:  in.GeneratedAt,
		Status:       StatusOK,
		UniverseSize: len(in.Tickers),
		Fetched:      len(in.Samples),
		Failed:       in.Failed,
		Failures:     in.Failures,
		Gainers:      []PriceEntry{},
		Losers:       []PriceEntry{},
		NetBuyers:    []FlowEntry{},
		NetSellers:   []FlowEntry{},
		Alerts:       []AlertEntry{},
		Movements:    []MovementEntry{},
	}

	if len(in.Tickers) == 0 {
		return NoData(in.CycleID, in.Market, in.GeneratedAt, "symbol universe is empty")
	}

	changePct := func(t market.Ticker) float64 { return t.PriceChangePercent }
	r.Gainers = lo.Map(ranking.TopN(in.Tickers, changePct, topN, ranking.Top), toPriceEntry)
	r.Losers = lo.Map(ranking.TopN(in.Tickers, changePct, topN, ranking.Bottom), toPriceEntry)
	r.Movements = lo.Map(in.Movements, func(m anomaly.Movement, _ int) MovementEntry {
		return MovementEntry{
			Symbol:             m.Symbol,
			LastPrice:          m.LastPrice,
			PriceChangePercent: m.PriceChangePercent,
			Direction:          string(m.Direction),
		}
	})

	if len(in.Samples) == 0 {
		r.Status = StatusNoData
		r.Reason = "every symbol fetch failed"
		return r
	}

	flow := func(s netflow.Sample) float64 { return s.Value }
	r.NetBuyers = lo.Map(ranking.TopN(in.Samples, flow, topN, ranking.Top), toFlowEntry)
	r.NetSellers = lo.Map(ranking.TopN(in.Samples, flow, topN, ranking.Bottom), toFlowEntry)

	r.Alerts = lo.Map(in.Alerts, func(a anomaly.Alert, _ int) AlertEntry {
		return AlertEntry{
			Symbol:          a.Symbol,
			CurrentValue:    a.CurrentValue,
			BaselineAverage: a.BaselineAverage,
			HasBaseline:     a.HasBaseline,
			Reason:          string(a.Reason),
		}
	})
	return r
}

// NoData builds the report of a cycle that never reached the fetch stage.
func NoData(cycleID, marketName string, at time.Time, reason string) Report {
	return Report{
		CycleID:     cycleID,
		Market:      marketName,
		GeneratedAt: at,
		Status:      StatusNoData,
		Reason:      reason,
		Gainers:     []PriceEntry{},
		Losers:      []PriceEntry{},
		NetBuyers:   []FlowEntry{},
		NetSellers:  []FlowEntry{},
		Alerts:      []AlertEntry{},
		Movements:   []MovementEntry{},
	}
}

func toPriceEntry(t market.Ticker, _ int) PriceEntry {
	return PriceEntry{
		Symbol:             t.Symbol,
		LastPrice:          t.LastPrice,
		PriceChangePercent: t.PriceChangePercent,
		QuoteVolume:        t.QuoteVolume,
	}
}

func toFlowEntry(s netflow.Sample, _ int) FlowEntry {
	return FlowEntry{Symbol: s.Symbol, NetFlow: s.Value}
}
