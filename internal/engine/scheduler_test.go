package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

type fixedCalendar struct {
	open atomic.Bool
}

func (c *fixedCalendar) IsMarketOpen(time.Time) bool { return c.open.Load() }

type countingRunner struct {
	mu   sync.Mutex
	runs int
	err  error
	ran  chan struct{}
}

func (r *countingRunner) RunCycle(context.Context) (CycleReport, error) {
	r.mu.Lock()
	r.runs++
	err := r.err
	r.mu.Unlock()
	if r.ran != nil {
		select {
		case r.ran <- struct{}{}:
		default:
		}
	}
	return CycleReport{Evaluated: 1}, err
}

func (r *countingRunner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestScheduler_RunOnceGatesOnCalendar(t *testing.T) {
	cal := &fixedCalendar{}
	runner := &countingRunner{}
	s := NewScheduler(time.Minute, runner, cal, discardLogger())

	if _, err := s.RunOnce(context.Background(), testEpoch, false); !errors.Is(err, domain.ErrMarketClosed) {
		t.Fatalf("closed market: got %v, want ErrMarketClosed", err)
	}
	if runner.Runs() != 0 {
		t.Fatalf("runs = %d, want 0", runner.Runs())
	}

	report, err := s.RunOnce(context.Background(), testEpoch, true)
	if err != nil || report.Evaluated != 1 {
		t.Fatalf("forced run: %+v, %v", report, err)
	}

	cal.open.Store(true)
	if _, err := s.RunOnce(context.Background(), testEpoch, false); err != nil {
		t.Fatalf("open market: %v", err)
	}
	if runner.Runs() != 2 {
		t.Fatalf("runs = %d, want 2", runner.Runs())
	}
}

func TestScheduler_TickToleratesErrors(t *testing.T) {
	cal := &fixedCalendar{}
	cal.open.Store(true)
	runner := &countingRunner{err: ErrCycleInProgress}
	s := NewScheduler(time.Minute, runner, cal, discardLogger())

	s.tick(context.Background(), testEpoch)
	runner.err = errors.New("store down")
	s.tick(context.Background(), testEpoch)

	if runner.Runs() != 2 {
		t.Fatalf("runs = %d, want 2", runner.Runs())
	}
}

func TestScheduler_StartRunsUntilCancelled(t *testing.T) {
	cal := &fixedCalendar{}
	cal.open.Store(true)
	runner := &countingRunner{ran: make(chan struct{}, 1)}
	s := NewScheduler(5*time.Millisecond, runner, cal, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ran a cycle")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	before := runner.Runs()
	time.Sleep(30 * time.Millisecond)
	if after := runner.Runs(); after != before {
		t.Fatalf("scheduler kept running after cancel: %d → %d", before, after)
	}
}

func TestScheduler_ClosedMarketNeverRuns(t *testing.T) {
	cal := &fixedCalendar{}
	runner := &countingRunner{}
	s := NewScheduler(2*time.Millisecond, runner, cal, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if runner.Runs() != 0 {
		t.Fatalf("runs = %d while market closed", runner.Runs())
	}
}

// blockingRunner holds each cycle open until release is closed.
type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (r *blockingRunner) RunCycle(context.Context) (CycleReport, error) {
	select {
	case r.started <- struct{}{}:
	default:
	}
	<-r.release
	r.finished.Store(true)
	return CycleReport{}, nil
}

func TestScheduler_DoneWaitsForRunningCycle(t *testing.T) {
	cal := &fixedCalendar{}
	cal.open.Store(true)
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewScheduler(2*time.Millisecond, runner, cal, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)
	<-runner.started
	cancel()

	select {
	case <-done:
		t.Fatal("done closed while a cycle was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if !runner.finished.Load() {
		t.Fatal("done closed before the cycle returned")
	}
}
