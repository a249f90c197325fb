package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/dingeii/binance-signal-bot/internal/baseline"
	"github.com/dingeii/binance-signal-bot/internal/ranking"
)

const defaultExportSymbols = 8

// Export renders the baseline history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStoreIfNeeded(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	bs, closeBaseline, err := a.newBaseline(ctx, store, a.Config.Baseline.MaxAge)
	if err != nil {
		return err
	}
	if closeBaseline != nil {
		defer closeBaseline()
	}
	if err := bs.Load(ctx); err != nil {
		return err
	}

	symbols := selectSymbols(bs, opts.Symbols)
	if len(symbols) == 0 {
		a.Logger.Info().Msg("no baseline history to export")
		return nil
	}
	a.Logger.Info().Int("symbols", len(symbols)).Msg("exporting baseline history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, bs, symbols); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		limit := opts.MaxSymbols
		if limit <= 0 {
			limit = defaultExportSymbols
		}
		if len(opts.Symbols) == 0 {
			magnitude := func(symbol string) float64 {
				hist := bs.History(symbol)
				return math.Abs(lo.Sum(hist) / float64(max(len(hist), 1)))
			}
			symbols = ranking.TopN(symbols, magnitude, limit, ranking.Top)
		}
		if err := writeHistoryPNG(opts.PNGPath, bs, symbols); err != nil {
			return err
		}
	}

	return nil
}

func selectSymbols(bs *baseline.Store, requested []string) []string {
	if len(requested) == 0 {
		return bs.Symbols()
	}
	wanted := lo.Map(requested, func(s string, _ int) string { return strings.ToUpper(strings.TrimSpace(s)) })
	return lo.Filter(lo.Uniq(wanted), func(s string, _ int) bool {
		_, ok := bs.Record(s)
		return ok
	})
}

func writeHistoryCSV(path string, bs *baseline.Store, symbols []string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"symbol", "position", "net_flow", "updated_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, symbol := range symbols {
		rec, ok := bs.Record(symbol)
		if !ok {
			continue
		}
		for i, v := range rec.Values {
			row := []string{
				symbol,
				strconv.Itoa(i),
				strconv.FormatFloat(v, 'f', -1, 64),
				rec.UpdatedAt.UTC().Format(time.RFC3339),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path string, bs *baseline.Store, symbols []string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	series := make([]chart.Series, 0, len(symbols))
	for _, symbol := range symbols {
		hist := bs.History(symbol)
		if len(hist) == 0 {
			continue
		}
		x := make([]float64, len(hist))
		for i := range hist {
			x[i] = float64(i + 1)
		}
		if len(hist) == 1 {
			// a single point draws nothing as a line
			x = append(x, 2)
			hist = append(hist, hist[0])
		}
		series = append(series, chart.ContinuousSeries{
			Name:    symbol,
			XValues: x,
			YValues: hist,
		})
	}
	if len(series) == 0 {
		return errors.New("no history to plot")
	}

	flowFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:           "Cycle",
			ValueFormatter: flowFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Net flow",
			ValueFormatter: flowFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
