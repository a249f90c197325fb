package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Render formats the report as Telegram-flavoured Markdown.
func Render(r Report) string {
	var b strings.Builder

	title := "Binance signal report"
	if r.Market != "" {
		title += " (" + r.Market + ")"
	}
	fmt.Fprintf(&b, "*%s*\n", title)
	fmt.Fprintf(&b, "`%s UTC`\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04"))

	if !r.HasData() {
		reason := r.Reason
		if reason == "" {
			reason = "no market data"
		}
		fmt.Fprintf(&b, "\nNo data available: %s.\n", reason)
		if r.UniverseSize > 0 {
			fmt.Fprintf(&b, "Symbols: %d, failed fetches: %d%s\n", r.UniverseSize, r.Failed, failureBreakdown(r.Failures))
		}
		writeMarket(&b, r)
		return b.String()
	}

	fmt.Fprintf(&b, "Symbols: %d, fetched: %d, failed: %d%s\n", r.UniverseSize, r.Fetched, r.Failed, failureBreakdown(r.Failures))

	b.WriteString("\n*Net-flow alerts*\n")
	if len(r.Alerts) == 0 {
		b.WriteString("No alerts this cycle.\n")
	}
	for _, a := range r.Alerts {
		if a.HasBaseline {
			fmt.Fprintf(&b, "`%s` %s vs avg %s (%s)\n", a.Symbol, num(a.CurrentValue, 2), num(a.BaselineAverage, 2), reasonLabel(a.Reason))
		} else {
			fmt.Fprintf(&b, "`%s` %s (%s)\n", a.Symbol, num(a.CurrentValue, 2), reasonLabel(a.Reason))
		}
	}

	writeMarket(&b, r)
	writeFlows(&b, "Net buyers", r.NetBuyers)
	writeFlows(&b, "Net sellers", r.NetSellers)
	return b.String()
}

// Caption is a one-line summary used under charts.
func Caption(r Report) string {
	if !r.HasData() {
		return fmt.Sprintf("No data available (%s)", r.GeneratedAt.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%d alerts, %d/%d symbols (%s)", len(r.Alerts), r.Fetched, r.UniverseSize, r.GeneratedAt.UTC().Format(time.RFC3339))
}

// writeMarket writes the ticker-derived sections: movements and price rankings.
func writeMarket(b *strings.Builder, r Report) {
	if len(r.Movements) > 0 {
		b.WriteString("\n*Price movements*\n")
		for _, m := range r.Movements {
			fmt.Fprintf(b, "`%s` %s%% @ %s (%s)\n", m.Symbol, signed(m.PriceChangePercent), num(m.LastPrice, 6), m.Direction)
		}
	}
	writePrices(b, "Top gainers (24h)", r.Gainers)
	writePrices(b, "Top losers (24h)", r.Losers)
}

func writePrices(b *strings.Builder, heading string, entries []PriceEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n*%s*\n", heading)
	for i, e := range entries {
		fmt.Fprintf(b, "%d. `%s` %s%% @ %s\n", i+1, e.Symbol, signed(e.PriceChangePercent), num(e.LastPrice, 6))
	}
}

func writeFlows(b *strings.Builder, heading string, entries []FlowEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n*%s*\n", heading)
	for i, e := range entries {
		fmt.Fprintf(b, "%d. `%s` %s\n", i+1, e.Symbol, signed(e.NetFlow))
	}
}

func failureBreakdown(failures map[string]int) string {
	if len(failures) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(failures))
	for kind := range failures {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s %d", strings.ReplaceAll(kind, "_", " "), failures[kind]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func reasonLabel(reason string) string {
	return strings.ReplaceAll(reason, "_", " ")
}

func num(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).String()
}

func signed(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	if v > 0 {
		return "+" + s
	}
	return s
}
