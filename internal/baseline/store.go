package baseline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultWindow     = 10
	DefaultMinHistory = 3
)

// Persister reads and replaces the whole baseline state.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Options tune the store.
type Options struct {
	// Window is the number of values kept per symbol (K).
	Window int
	// MinHistory is the history length required before Average reports a value (M).
	MinHistory int
	// MaxAge evicts records not updated within this duration; 0 keeps them forever.
	MaxAge time.Duration
}

// Store holds per-symbol rolling net-flow history in memory between Load
// and Save. It is not safe for concurrent use; one cycle owns it.
type Store struct {
	opts      Options
	persister Persister
	records   map[string]*Record
	logger    zerolog.Logger
}

// NewStore constructs a Store. A nil persister keeps state in memory only.
func NewStore(opts Options, persister Persister, logger zerolog.Logger) *Store {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MinHistory <= 0 {
		opts.MinHistory = DefaultMinHistory
	}
	return &Store{
		opts:      opts,
		persister: persister,
		records:   make(map[string]*Record),
		logger:    logger.With().Str("component", "baseline_store").Logger(),
	}
}

// Options returns the effective options.
func (s *Store) Options() Options {
	return s.opts
}

// Load replaces the in-memory state with the persisted one. Corrupt state
// resets the store to empty and is not reported as an error. A memory-only
// store keeps its state.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.records = make(map[string]*Record)

	snap, err := s.persister.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			s.logger.Warn().Err(err).Msg("baseline state corrupt, starting cold")
			return nil
		}
		return fmt.Errorf("load baseline: %w", err)
	}

	for symbol, rec := range snap {
		values := rec.Values
		if len(values) > s.opts.Window {
			values = values[len(values)-s.opts.Window:]
		}
		s.records[symbol] = &Record{
			Values:    append([]float64(nil), values...),
			UpdatedAt: rec.UpdatedAt,
		}
	}
	s.logger.Debug().Int("symbols", len(s.records)).Msg("baseline loaded")
	return nil
}

// Save writes the whole state back through the persister.
func (s *Store) Save(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	s.logger.Debug().Int("symbols", len(s.records)).Msg("baseline saved")
	return nil
}

// Average returns the mean of the stored history, or false when fewer than
// MinHistory values are stored.
func (s *Store) Average(symbol string) (float64, bool) {
	rec, ok := s.records[symbol]
	if !ok || len(rec.Values) < s.opts.MinHistory {
		return 0, false
	}
	var sum float64
	for _, v := range rec.Values {
		sum += v
	}
	return sum / float64(len(rec.Values)), true
}

// Append adds value to the symbol's history, evicting the oldest values
// beyond Window. Non-finite values are dropped.
func (s *Store) Append(symbol string, value float64, at time.Time) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		s.logger.Warn().Str("symbol", symbol).Msg("non-finite net-flow dropped")
		return
	}

	rec, ok := s.records[symbol]
	if !ok {
		rec = &Record{Values: make([]float64, 0, s.opts.Window)}
		s.records[symbol] = rec
	}
	rec.Values = append(rec.Values, value)
	if overflow := len(rec.Values) - s.opts.Window; overflow > 0 {
		rec.Values = append(rec.Values[:0:0], rec.Values[overflow:]...)
	}
	rec.UpdatedAt = at
}

// History returns a copy of the symbol's values, oldest first.
func (s *Store) History(symbol string) []float64 {
	rec, ok := s.records[symbol]
	if !ok {
		return nil
	}
	return append([]float64(nil), rec.Values...)
}

// Record returns a copy of the symbol's record.
func (s *Store) Record(symbol string) (Record, bool) {
	rec, ok := s.records[symbol]
	if !ok {
		return Record{}, false
	}
	return Record{Values: append([]float64(nil), rec.Values...), UpdatedAt: rec.UpdatedAt}, true
}

// Len returns the number of tracked symbols.
func (s *Store) Len() int {
	return len(s.records)
}

// Symbols lists tracked symbols in lexical order.
func (s *Store) Symbols() []string {
	out := make([]string, 0, len(s.records))
	for symbol := range s.records {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Prune removes records not updated within MaxAge of now and returns the
// removed symbols in lexical order.
func (s *Store) Prune(now time.Time) []string {
	if s.opts.MaxAge <= 0 {
		return nil
	}
	cutoff := now.Add(-s.opts.MaxAge)
	removed := make([]string, 0)
	for symbol, rec := range s.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.records, symbol)
			removed = append(removed, symbol)
		}
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		s.logger.Info().Int("removed", len(removed)).Dur("max_age", s.opts.MaxAge).Msg("stale baselines pruned")
	}
	return removed
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.records))
	for symbol, rec := range s.records {
		snap[symbol] = Record{Values: append([]float64(nil), rec.Values...), UpdatedAt: rec.UpdatedAt}
	}
	return snap
}
