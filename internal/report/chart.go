package report

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrEmptyChart is returned when there is nothing to plot.
var ErrEmptyChart = errors.New("report: no entries to chart")

var (
	gainColor = drawing.ColorFromHex("2e7d32")
	lossColor = drawing.ColorFromHex("c62828")
)

// RenderChart draws a PNG bar chart of 24h price change per symbol.
func RenderChart(title string, entries []PriceEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyChart
	}

	bars := make([]chart.Value, 0, len(entries))
	lo, hi := 0.0, 0.0
	for _, e := range entries {
		style := chart.Style{FillColor: gainColor, StrokeColor: gainColor}
		if e.PriceChangePercent < 0 {
			style = chart.Style{FillColor: lossColor, StrokeColor: lossColor}
		}
		bars = append(bars, chart.Value{
			Label: e.Symbol,
			Value: e.PriceChangePercent,
			Style: style,
		})
		lo = math.Min(lo, e.PriceChangePercent)
		hi = math.Max(hi, e.PriceChangePercent)
	}
	if hi == lo {
		hi = lo + 1
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      1280,
		Height:     720,
		BarWidth:   40,
		BarSpacing: 12,
		Background: chart.Style{Padding: chart.Box{Top: 48, Bottom: 24}},
		YAxis: chart.YAxis{
			Name:  "24h change (%)",
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		UseBaseValue: true,
		BaseValue:    0,
		Bars:         bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
