package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/hevysync/internal/upload"
)

// PassFunc runs one sync pass.
type PassFunc func(ctx context.Context) (*upload.Stats, error)

// SchedulerStatus is a snapshot of the scheduler for the status endpoint.
type SchedulerStatus struct {
	Running   bool          `json:"running"`
	Queued    bool          `json:"queued"`
	Interval  string        `json:"interval"`
	LastRunAt *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt *time.Time    `json:"next_run_at,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	LastStats *upload.Stats `json:"last_stats,omitempty"`
}

// Scheduler runs passes from a single goroutine, on a fixed interval and on
// demand. Passes never overlap within a process.
type Scheduler struct {
	run      PassFunc
	interval time.Duration
	trigger  chan struct{}
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	running   bool
	lastRunAt time.Time
	nextRunAt time.Time
	lastErr   error
	lastStats *upload.Stats
}

// NewScheduler creates a scheduler that calls run every interval.
func NewScheduler(run PassFunc, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		run:      run,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		log:      log,
		now:      time.Now,
	}
}

// Trigger queues a pass. It returns false when one is already queued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start runs a pass immediately, then on every tick or trigger, until ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
			ticker.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.lastRunAt = s.now()
	s.mu.Unlock()

	stats, err := s.run(ctx)
	switch {
	case errors.Is(err, upload.ErrLocked):
		s.log.Warn("sync pass skipped, another pass holds the lock")
	case err != nil:
		s.log.Error("sync pass failed", "error", err)
	}

	s.mu.Lock()
	s.running = false
	s.lastErr = err
	if stats != nil {
		s.lastStats = stats
	}
	s.nextRunAt = s.now().Add(s.interval)
	s.mu.Unlock()
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		Running:   s.running,
		Queued:    len(s.trigger) > 0,
		Interval:  s.interval.String(),
		LastStats: s.lastStats,
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		st.LastRunAt = &t
	}
	if !s.nextRunAt.IsZero() {
		t := s.nextRunAt
		st.NextRunAt = &t
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
