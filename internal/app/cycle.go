package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dingeii/binance-signal-bot/internal/report"
)

// RunOnce executes a single cycle and writes the report to w.
func (a *App) RunOnce(ctx context.Context, w io.Writer, opts CycleOptions) error {
	c, err := a.build(ctx, buildOptions{notify: opts.Notify})
	if err != nil {
		return err
	}
	defer c.Close()

	rep, err := c.service.RunCycle(ctx, time.Now().UTC())
	if err != nil && rep.CycleID == "" {
		return err
	}
	if werr := writeReport(w, rep, opts.JSON); werr != nil {
		return werr
	}
	return err
}

func writeReport(w io.Writer, rep report.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	_, err := fmt.Fprint(w, report.Render(rep))
	return err
}
