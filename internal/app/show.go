package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dingeii/binance-signal-bot/internal/storage"
)

// Show prints the tracked baseline, one symbol per row.
func (a *App) Show(ctx context.Context, w io.Writer, opts ShowOptions) error {
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

	symbols := bs.Symbols()
	if opts.Symbol != "" {
		symbols = []string{strings.ToUpper(opts.Symbol)}
	}
	if opts.Limit > 0 && len(symbols) > opts.Limit {
		symbols = symbols[:opts.Limit]
	}
	if bs.Len() == 0 {
		fmt.Fprintln(w, "baseline is empty")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tSamples\tAverage\tLast\tUpdated (UTC)")
	for _, symbol := range symbols {
		rec, ok := bs.Record(symbol)
		if !ok {
			fmt.Fprintf(writer, "%s\t0\t-\t-\t-\n", symbol)
			continue
		}
		avg := "warming"
		if v, ok := bs.Average(symbol); ok {
			avg = formatFloat(v, 2)
		}
		last := "-"
		if n := len(rec.Values); n > 0 {
			last = formatFloat(rec.Values[n-1], 2)
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%s\n", symbol, len(rec.Values), avg, last, rec.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return writer.Flush()
}

// Alerts prints the most recent audited alerts.
func (a *App) Alerts(ctx context.Context, w io.Writer, opts AlertsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	defer closeStore()

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(w, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tNet flow\tBaseline avg\tReason\tCycle")
	for _, alert := range alerts {
		avg := "-"
		if alert.HasBaseline {
			avg = alert.BaselineAverage.StringFixed(2)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.ObservedAt.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.CurrentValue.StringFixed(2),
			avg,
			alert.Reason,
			alert.CycleID,
		)
	}
	return writer.Flush()
}

// Prune drops stale baseline records and, when a database is configured,
// old audited alerts.
func (a *App) Prune(ctx context.Context, w io.Writer, opts PruneOptions) error {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = a.Config.Baseline.MaxAge
	}
	if maxAge <= 0 {
		return errors.New("max age must be positive")
	}

	store, closeStore, err := a.openStoreIfNeeded(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	bs, closeBaseline, err := a.newBaseline(ctx, store, maxAge)
	if err != nil {
		return err
	}
	if closeBaseline != nil {
		defer closeBaseline()
	}
	if err := bs.Load(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	pruned := bs.Prune(now)
	fmt.Fprintf(w, "baseline: %d stale symbols older than %s\n", len(pruned), maxAge)
	for _, symbol := range pruned {
		fmt.Fprintf(w, "  %s\n", symbol)
	}
	if !opts.DryRun && len(pruned) > 0 {
		if err := bs.Save(ctx); err != nil {
			return err
		}
	}

	if opts.AlertsOlderThan > 0 {
		if store == nil {
			store, closeStore, err = a.openStore(ctx)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("database not configured; cannot prune alerts")
			}
			defer closeStore()
		}
		if opts.DryRun {
			fmt.Fprintf(w, "alerts: would delete rows older than %s\n", opts.AlertsOlderThan)
			return nil
		}
		n, err := store.DeleteAlertsBefore(ctx, now.Add(-opts.AlertsOlderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "alerts: deleted %d rows\n", n)
	}
	return nil
}

// openStoreIfNeeded connects to Postgres only for the postgres baseline backend.
func (a *App) openStoreIfNeeded(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Baseline.Backend != "postgres" {
		return nil, nil, nil
	}
	return a.openStore(ctx)
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
