package fetcher

import (
	"context"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

type rawTicker struct {
	Symbol             string
	PriceChangePercent string
	LastPrice          string
	Volume             string
	QuoteVolume        string
}

type rawLevel struct {
	Price    string
	Quantity string
}

type rawBook struct {
	Bids []rawLevel
	Asks []rawLevel
}

type rawTrade struct {
	Quantity     string
	IsBuyerMaker bool
	Timestamp    int64
}

// exchangeAPI hides the spot/futures client differences.
type exchangeAPI interface {
	tickers(ctx context.Context) ([]rawTicker, error)
	depth(ctx context.Context, symbol string, limit int) (rawBook, error)
	aggTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]rawTrade, error)
}

type futuresAPI struct {
	cli *futures.Client
}

func newFuturesAPI(baseURL string, httpClient *http.Client) *futuresAPI {
	cli := futures.NewClient("", "")
	if baseURL != "" {
		cli.BaseURL = baseURL
	}
	if httpClient != nil {
		cli.HTTPClient = httpClient
	}
	return &futuresAPI{cli: cli}
}

func (f *futuresAPI) tickers(ctx context.Context) ([]rawTicker, error) {
	stats, err := f.cli.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rawTicker, 0, len(stats))
	for _, s := range stats {
		out = append(out, rawTicker{
			Symbol:             s.Symbol,
			PriceChangePercent: s.PriceChangePercent,
			LastPrice:          s.LastPrice,
			Volume:             s.Volume,
			QuoteVolume:        s.QuoteVolume,
		})
	}
	return out, nil
}

func (f *futuresAPI) depth(ctx context.Context, symbol string, limit int) (rawBook, error) {
	res, err := f.cli.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return rawBook{}, err
	}
	book := rawBook{
		Bids: make([]rawLevel, 0, len(res.Bids)),
		Asks: make([]rawLevel, 0, len(res.Asks)),
	}
	for _, l := range res.Bids {
		book.Bids = append(book.Bids, rawLevel{Price: l.Price, Quantity: l.Quantity})
	}
	for _, l := range res.Asks {
		book.Asks = append(book.Asks, rawLevel{Price: l.Price, Quantity: l.Quantity})
	}
	return book, nil
}

func (f *futuresAPI) aggTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]rawTrade, error) {
	trades, err := f.cli.NewAggTradesService().
		Symbol(symbol).
		StartTime(since.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rawTrade, 0, len(trades))
	for _, t := range trades {
		out = append(out, rawTrade{Quantity: t.Quantity, IsBuyerMaker: t.IsBuyerMaker, Timestamp: t.Timestamp})
	}
	return out, nil
}

type spotAPI struct {
	cli *binance.Client
}

func newSpotAPI(baseURL string, httpClient *http.Client) *spotAPI {
	cli := binance.NewClient("", "")
	if baseURL != "" {
		cli.BaseURL = baseURL
	}
	if httpClient != nil {
		cli.HTTPClient = httpClient
	}
	return &spotAPI{cli: cli}
}

func (s *spotAPI) tickers(ctx context.Context) ([]rawTicker, error) {
	stats, err := s.cli.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rawTicker, 0, len(stats))
	for _, st := range stats {
		out = append(out, rawTicker{
			Symbol:             st.Symbol,
			PriceChangePercent: st.PriceChangePercent,
			LastPrice:          st.LastPrice,
			Volume:             st.Volume,
			QuoteVolume:        st.QuoteVolume,
		})
	}
	return out, nil
}

func (s *spotAPI) depth(ctx context.Context, symbol string, limit int) (rawBook, error) {
	res, err := s.cli.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return rawBook{}, err
	}
	book := rawBook{
		Bids: make([]rawLevel, 0, len(res.Bids)),
		Asks: make([]rawLevel, 0, len(res.Asks)),
	}
	for _, l := range res.Bids {
		book.Bids = append(book.Bids, rawLevel{Price: l.Price, Quantity: l.Quantity})
	}
	for _, l := range res.Asks {
		book.Asks = append(book.Asks, rawLevel{Price: l.Price, Quantity: l.Quantity})
	}
	return book, nil
}

func (s *spotAPI) aggTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]rawTrade, error) {
	trades, err := s.cli.NewAggTradesService().
		Symbol(symbol).
		StartTime(since.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rawTrade, 0, len(trades))
	for _, t := range trades {
		out = append(out, rawTrade{Quantity: t.Quantity, IsBuyerMaker: t.IsBuyerMaker, Timestamp: t.Timestamp})
	}
	return out, nil
}
