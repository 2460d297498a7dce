// Package scheduler triggers test cycles on a fixed interval and coordinates
// a graceful shutdown with the runs still in flight.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
)

// Runner starts test cycles. Run must not block on the cycles; onComplete is
// called after each cycle finished and stopped counting as running.
type Runner interface {
	Run(ctx context.Context, onComplete func())
	IsRunning() bool
}

// Termination tells the process why the scheduler finished
type Termination struct {
	Forced bool
	Reason string
}

// Scheduler runs the Runner once on Start and then once per interval
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   logger.Logger

	mu            sync.Mutex
	ctx           context.Context
	stopChan      chan struct{}
	started       bool
	paused        bool
	shuttingDown  bool
	lastStarted   time.Time
	lastCompleted time.Time

	terminated    chan Termination
	terminateOnce sync.Once
}

// New creates a scheduler
func New(runner Runner, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		logger:     log,
		ctx:        context.Background(),
		terminated: make(chan Termination, 1),
	}
}

// Start runs a cycle immediately and then one per interval. ctx is handed to
// the cycles; it should not be the signal context so a shutdown never aborts
// a running cycle. Calling Start on a started scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	s.stopChan = make(chan struct{})
	s.started = true
	stop := s.stopChan
	s.mu.Unlock()

	s.logger.Info("Scheduler started, testing every %v", s.interval)
	s.execute()
	go s.loop(stop)
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.execute()
		case <-stop:
			return
		}
	}
}

// Stop cancels future ticks. Cycles already running are not affected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.started {
		return
	}
	close(s.stopChan)
	s.stopChan = nil
	s.started = false
}

// Pause makes triggered cycles return without testing
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.logger.Notice("Scheduler paused")
}

// Resume undoes Pause
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.logger.Notice("Scheduler resumed")
}

// ForceRun triggers a cycle now
func (s *Scheduler) ForceRun() {
	s.logger.Info("Forced test cycle requested")
	s.execute()
}

// execute starts one cycle unless paused or shutting down. Panics from the
// runner are recovered and logged.
func (s *Scheduler) execute() {
	s.mu.Lock()
	if s.paused || s.shuttingDown {
		s.mu.Unlock()
		s.logger.Debug("Skipping test cycle (paused or shutting down)")
		return
	}
	s.lastStarted = time.Now()
	ctx := s.ctx
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Error executing test cycle: %v", r)
		}
	}()
	s.runner.Run(ctx, s.onCycleComplete)
}

func (s *Scheduler) onCycleComplete() {
	s.mu.Lock()
	s.lastCompleted = time.Now()
	shuttingDown := s.shuttingDown
	s.mu.Unlock()

	if shuttingDown && !s.runner.IsRunning() {
		s.terminate(Termination{Reason: "all test runs completed"})
	}
}

// Shutdown stops scheduling and terminates once no run is in flight. A second
// call while waiting forces termination.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		s.logger.Notice("Second shutdown request, forcing termination")
		s.terminate(Termination{Forced: true, Reason: "shutdown forced while tests were running"})
		return
	}
	s.shuttingDown = true
	s.stopLocked()
	s.mu.Unlock()

	if !s.runner.IsRunning() {
		s.terminate(Termination{Reason: "no test running"})
		return
	}
	s.logger.Notice("Shutdown requested, waiting for running tests to complete. Repeat to force.")
}

func (s *Scheduler) terminate(t Termination) {
	s.terminateOnce.Do(func() {
		s.logger.Info("Scheduler terminated: %s", t.Reason)
		s.terminated <- t
	})
}

// Terminated delivers exactly one Termination after Shutdown
func (s *Scheduler) Terminated() <-chan Termination {
	return s.terminated
}

// IsStarted reports whether ticks are scheduled
func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// IsPaused reports whether cycles are paused
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsShuttingDown reports whether Shutdown was called
func (s *Scheduler) IsShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// LastRunStarted returns when the last cycle was triggered
func (s *Scheduler) LastRunStarted() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStarted
}

// LastRunCompleted returns when the last vault cycle finished
func (s *Scheduler) LastRunCompleted() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompleted
}
