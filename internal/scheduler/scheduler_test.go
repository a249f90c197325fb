package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsZeroInterval(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("interval=0 应报错")
	}
}

func TestRunInvokesCyclesUntilCanceled(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond, RunImmediately: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("cycle errors must not stop the loop")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run 应以 context.Canceled 结束, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("期望至少 3 次执行, 实际 %d", calls.Load())
	}
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	s, _ := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("cycle must not run")
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestAlignedSlots(t *testing.T) {
	s, _ := New(Options{Interval: 5 * time.Minute, Align: true}, zerolog.Nop())
	now := time.Date(2024, 5, 1, 12, 3, 20, 0, time.UTC)

	next := s.nextSlot(now)
	if want := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next slot = %s, want %s", next, want)
	}
	onBoundary := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	if got := s.nextSlot(onBoundary); !got.Equal(onBoundary.Add(5 * time.Minute)) {
		t.Fatalf("边界时刻应取下一个 slot: %s", got)
	}
	if got := s.slotStart(next.Add(3 * time.Millisecond)); !got.Equal(next) {
		t.Fatalf("slotStart = %s", got)
	}
}
