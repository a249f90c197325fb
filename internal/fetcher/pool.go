package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers = 10
	DefaultTimeout = 5 * time.Second
)

// PoolOptions bound the fan-out.
type PoolOptions struct {
	Workers int
	Timeout time.Duration
	// Limiter, when set, paces fetch starts across all workers.
	Limiter *rate.Limiter
}

// Pool runs a fixed number of workers over a task queue.
type Pool struct {
	opts   PoolOptions
	logger zerolog.Logger
}

func NewPool(opts PoolOptions, logger zerolog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Pool{
		opts:   opts,
		logger: logger.With().Str("component", "fetch_pool").Logger(),
	}
}

func (p *Pool) Workers() int {
	return p.opts.Workers
}

// FetchAll fetches every distinct symbol and returns exactly one Result per
// symbol. Each fetch gets its own timeout and is not interrupted when ctx
// ends; symbols not yet started by then are reported as canceled.
func (p *Pool) FetchAll(ctx context.Context, symbols []string, fn FetchFunc) map[string]Result {
	unique := lo.Uniq(symbols)
	out := make(map[string]Result, len(unique))
	if len(unique) == 0 {
		return out
	}

	workers := min(p.opts.Workers, len(unique))
	tasks := make(chan string)
	results := make(chan Result, workers)

	var wg sync.WaitGroup
	wg.Add(workers + 1)

	go func() {
		defer wg.Done()
		defer close(tasks)
		for i, symbol := range unique {
			select {
			case <-ctx.Done():
				for _, rest := range unique[i:] {
					results <- Result{Symbol: rest, Err: &FetchError{Symbol: rest, Kind: FailureCanceled, Err: ctx.Err()}}
				}
				return
			case tasks <- symbol:
			}
		}
	}()

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for symbol := range tasks {
				results <- p.fetchOne(ctx, symbol, fn)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var failed int
	for res := range results {
		if !res.OK() {
			failed++
		}
		out[res.Symbol] = res
	}

	p.logger.Debug().
		Int("symbols", len(unique)).
		Int("failed", failed).
		Int("workers", workers).
		Msg("fetch fan-out complete")
	return out
}

func (p *Pool) fetchOne(ctx context.Context, symbol string, fn FetchFunc) Result {
	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// the limiter refuses a wait that would outlive the deadline
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return Result{Symbol: symbol, Err: newFetchError(symbol, err)}
		}
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.Timeout)
	defer cancel()

	telemetry, err := fn(fetchCtx, symbol)
	if err != nil {
		return Result{Symbol: symbol, Err: newFetchError(symbol, err)}
	}
	return Result{Symbol: symbol, Telemetry: telemetry}
}
