package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler reloads a catalog on a cron schedule so tables published by other
// instances into the shared repository are picked up.
//
// Common schedules:
//   - "@every 30s"   - every thirty seconds
//   - "*/5 * * * *"  - every five minutes
type Scheduler struct {
	catalog  *Catalog
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for catalog. The schedule is validated by Start.
func NewScheduler(catalog *Catalog, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		catalog:  catalog,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "catalog.scheduler"),
	}
}

// Start registers the reload job and starts the cron runner. An empty schedule
// disables scheduled reloads. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("refresh schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.catalog.Reload(ctx); err != nil {
			s.logger.Debug("scheduled reload failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reload: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("refresh scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for a running reload to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("refresh scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled reload, or nil when none is scheduled
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
