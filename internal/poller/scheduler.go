package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/metrics"
)

// CycleRunner runs one poll cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) CycleResult
}

var _ CycleRunner = (*Orchestrator)(nil)

// Scheduler runs cycles on a fixed interval. Cycles never overlap: a tick
// that fires while a cycle is still running is dropped.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	clock    clockwork.Clock

	running sync.Mutex
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner CycleRunner, interval time.Duration, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{runner: runner, interval: interval, clock: clock}
}

// Run starts a cycle immediately and then on every tick until ctx is done.
// It waits for an in-flight cycle before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("poller started", "interval", s.interval.String())

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			log.Info("poller stopped")
			return nil
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick starts a cycle in the background unless one is running.
func (s *Scheduler) tick(ctx context.Context) bool {
	if !s.running.TryLock() {
		metrics.PollCyclesSkipped.Inc()
		log.Warn("previous poll cycle still running, skipping tick")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.runner.RunCycle(ctx)
	}()
	return true
}

// RunOnce runs a single cycle in the caller's goroutine. The boolean is
// false when a cycle was already running and nothing was done.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, bool) {
	if !s.running.TryLock() {
		metrics.PollCyclesSkipped.Inc()
		return CycleResult{}, false
	}
	defer s.running.Unlock()
	return s.runner.RunCycle(ctx), true
}
