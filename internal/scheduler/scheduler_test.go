package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ms-auctions/internal/logger"
	"ms-auctions/internal/scheduler"
)

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	log := logger.NewLogger()
	t.Cleanup(log.Close)
	return scheduler.New(log)
}

func TestJobRunsImmediatelyAndOnTick(t *testing.T) {
	s := newScheduler(t)

	var runs int64
	s.Register(scheduler.Job{
		Name:     "sweep",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	s.Start()
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	got := atomic.LoadInt64(&runs)
	if got < 2 {
		t.Errorf("expected an immediate run plus at least one tick, got %d runs", got)
	}
}

func TestFailingJobKeepsTicking(t *testing.T) {
	s := newScheduler(t)

	var runs int64
	s.Register(scheduler.Job{
		Name:     "flaky",
		Interval: 15 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return errors.New("db unavailable")
		},
	})

	s.Start()
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	if got := atomic.LoadInt64(&runs); got < 2 {
		t.Errorf("a failing job should keep being retried, got %d runs", got)
	}
}

func TestRunContextCarriesTimeout(t *testing.T) {
	s := newScheduler(t)

	deadlines := make(chan time.Duration, 1)
	s.Register(scheduler.Job{
		Name:     "bounded",
		Interval: time.Hour,
		Timeout:  200 * time.Millisecond,
		Run: func(ctx context.Context) error {
			dl, ok := ctx.Deadline()
			if !ok {
				t.Error("run context has no deadline")
				return nil
			}
			select {
			case deadlines <- time.Until(dl):
			default:
			}
			return nil
		},
	})

	s.Start()
	defer s.Stop()

	select {
	case remaining := <-deadlines:
		if remaining > 200*time.Millisecond {
			t.Errorf("deadline further out than the job timeout: %s", remaining)
		}
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	s := newScheduler(t)

	done := make(chan struct{})
	started := make(chan struct{})
	s.Register(scheduler.Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			time.Sleep(30 * time.Millisecond)
			close(done)
			return nil
		},
	})

	s.Start()
	<-started
	s.Stop()

	select {
	case <-done:
	default:
		t.Error("Stop returned before the in-flight run finished")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := newScheduler(t)
	s.Register(scheduler.Job{
		Name:     "noop",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
	})

	s.Start()
	s.Stop()
	s.Stop() // must not panic on the closed channel
}
