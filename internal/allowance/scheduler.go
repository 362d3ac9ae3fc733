package allowance

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs the current period on a ticker. Because runs are idempotent
// per period, the interval only bounds how late in a week a kid is credited.
type Scheduler struct {
	mu       sync.RWMutex
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger.With("component", "allowance_scheduler"),
		now:      time.Now,
	}
}

// Start runs once immediately, then on every tick until Stop or ctx ends.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) tick(ctx context.Context) {
	period := Period(s.now())
	if _, err := s.runner.RunPeriod(ctx, period); err != nil {
		s.logger.Error("allowance run failed", "period", period, "error", err)
	}
}
