package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

// MarketCalendar reports whether matching may run at a given instant.
type MarketCalendar interface {
	IsMarketOpen(now time.Time) bool
}

// CycleRunner runs one matching cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// Scheduler runs matching cycles on a fixed interval while the market is
// open. Ticks that land while a cycle is still running are dropped, and a
// cycle that runs twice for the same minute is harmless.
type Scheduler struct {
	interval time.Duration
	runner   CycleRunner
	calendar MarketCalendar
	logger   *slog.Logger
}

func NewScheduler(interval time.Duration, runner CycleRunner, calendar MarketCalendar, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		runner:   runner,
		calendar: calendar,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled; the returned channel is closed
// once the goroutine has exited, after any in-flight cycle returns.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.tick(ctx, t)
			}
		}
	}()
	return done
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	_, err := s.RunOnce(ctx, now, false)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrMarketClosed):
		s.logger.Debug("market closed, skipping matching cycle")
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Debug("previous matching cycle still running")
	default:
		s.logger.Error("matching cycle error", slog.String("error", err.Error()))
	}
}

// RunOnce runs a single cycle now. Unless force is set it returns
// domain.ErrMarketClosed outside trading hours.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time, force bool) (CycleReport, error) {
	if !force && !s.calendar.IsMarketOpen(now) {
		return CycleReport{}, domain.ErrMarketClosed
	}
	return s.runner.RunCycle(ctx)
}
