package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// CycleFunc runs one evaluation cycle for the given slot.
type CycleFunc func(ctx context.Context, slot time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// Align starts cycles on wall-clock multiples of Interval.
	Align        bool
	StartupDelay time.Duration
	// RunImmediately runs one cycle before waiting for the first slot.
	RunImmediately bool
}

// Scheduler drives periodic cycles. Cycles never overlap: a slot that
// passes while a cycle is still running is skipped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}, nil
}

// Run blocks, invoking cycle at each interval until ctx is cancelled.
// Cycle errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, cycle CycleFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunImmediately {
		s.execute(ctx, cycle, time.Now().UTC())
	}

	next := s.nextSlot(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			skipped := next
			next = s.nextSlot(time.Now().UTC())
			s.logger.Warn().Time("skipped_slot", skipped).Time("next_slot", next).Msg("cycle overran its slot")
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_slot", next).Msg("waiting for next slot")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.execute(ctx, cycle, s.slotStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, cycle CycleFunc, slot time.Time) {
	s.logger.Info().Time("slot", slot).Msg("executing scheduled cycle")
	if err := cycle(ctx, slot); err != nil {
		s.logger.Error().Err(err).Time("slot", slot).Msg("cycle execution failed")
	}
}

func (s *Scheduler) nextSlot(now time.Time) time.Time {
	if !s.opts.Align {
		return now.Add(s.opts.Interval)
	}
	slot := now.Truncate(s.opts.Interval)
	if !slot.After(now) {
		slot = slot.Add(s.opts.Interval)
	}
	return slot
}

func (s *Scheduler) slotStart(t time.Time) time.Time {
	if !s.opts.Align {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
