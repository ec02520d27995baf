// Package scheduler runs the periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/metrics"
)

// RetentionStore deletes finished backtests older than a cutoff
type RetentionStore interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CacheSweeper evicts expired cache entries
type CacheSweeper interface {
	DeleteExpired() int
}

// MetricsRefresher recomputes gauges that are not updated inline
type MetricsRefresher interface {
	RefreshMetrics(ctx context.Context) error
}

// Scheduler manages the scheduled maintenance jobs
type Scheduler struct {
	cron            *cron.Cron
	logger          *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	gracefulTimeout time.Duration
	now             func() time.Time
}

// NewScheduler creates a new scheduler running in UTC
func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		logger:          logger.WithField("component", "scheduler"),
		jobIDs:          make([]cron.EntryID, 0),
		gracefulTimeout: 30 * time.Second,
		now:             time.Now,
	}
}

func (s *Scheduler) add(schedule, name string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	entryID, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}
	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("Scheduled job")
	return nil
}

// ScheduleRetention deletes finished backtests older than days on the cron schedule
func (s *Scheduler) ScheduleRetention(schedule string, days int, store RetentionStore) error {
	if days <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", days)
	}
	return s.add(schedule, "retention", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		_, _ = s.RunRetention(ctx, days, store)
	})
}

// RunRetention performs one cleanup pass
func (s *Scheduler) RunRetention(ctx context.Context, days int, store RetentionStore) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	deleted, err := store.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Retention cleanup failed")
		return 0, fmt.Errorf("failed to delete old backtests: %w", err)
	}
	metrics.RecordRetentionDeleted(deleted)
	s.logger.WithFields(logrus.Fields{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	}).Info("Retention cleanup completed")
	return deleted, nil
}

// ScheduleCacheSweep evicts expired cache entries on every interval
func (s *Scheduler) ScheduleCacheSweep(interval time.Duration, sweeper CacheSweeper) error {
	return s.add(fmt.Sprintf("@every %s", interval), "cache_sweep", func() {
		remaining := sweeper.DeleteExpired()
		s.logger.WithField("remaining", remaining).Debug("Swept bar cache")
	})
}

// ScheduleMetricsRefresh recomputes gauges on every interval
func (s *Scheduler) ScheduleMetricsRefresh(interval time.Duration, refreshers ...MetricsRefresher) error {
	return s.add(fmt.Sprintf("@every %s", interval), "metrics_refresh", func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		for _, r := range refreshers {
			if err := r.RefreshMetrics(ctx); err != nil {
				s.logger.WithError(err).Warn("Failed to refresh metrics")
			}
		}
	})
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")
	return nil
}

// Stop waits for running jobs up to the graceful timeout
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.isRunning = false
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler jobs still running after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns the earliest upcoming run time
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	var next time.Time
	for _, id := range s.jobIDs {
		entry := s.cron.Entry(id)
		if entry.Valid() && (next.IsZero() || entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}

// Entries returns the scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, id := range s.jobIDs {
		if entry := s.cron.Entry(id); entry.Valid() {
			entries = append(entries, entry)
		}
	}
	return entries
}
