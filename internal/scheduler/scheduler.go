// Package scheduler runs calibration refreshes and snapshot housekeeping on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/clever-calibrator/internal/calibration"
	"github.com/yourusername/clever-calibrator/internal/tracing"
)

// Refresher is the part of the calibration service the scheduler drives
type Refresher interface {
	Refresh(ctx context.Context) (*calibration.Snapshot, error)
	PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error)
}

// Scheduler manages scheduled calibration jobs
type Scheduler struct {
	cron            *cron.Cron
	refresher       Refresher
	logger          *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	jobTimeout      time.Duration
	gracefulTimeout time.Duration
}

// NewScheduler creates a new scheduler
func NewScheduler(refresher Refresher, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		refresher:       refresher,
		logger:          logger.WithField("component", "scheduler"),
		jobIDs:          make([]cron.EntryID, 0),
		jobTimeout:      10 * time.Minute,
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleRefresh schedules the periodic calibration refresh.
// Runs that are still in progress when the next tick fires are skipped.
func (s *Scheduler) ScheduleRefresh(cronExpression string) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(s.runRefresh))
	return s.addJob(cronExpression, job, "refresh")
}

// ScheduleSnapshotPrune schedules deletion of persisted snapshots older than retention
func (s *Scheduler) ScheduleSnapshotPrune(cronExpression string, retention time.Duration) error {
	if retention <= 0 {
		return fmt.Errorf("snapshot retention must be positive")
	}
	job := cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		removed, err := s.refresher.PruneSnapshots(ctx, retention)
		if err != nil {
			s.logger.WithError(err).Error("Scheduled snapshot prune failed")
			return
		}
		s.logger.WithField("removed", removed).Debug("Scheduled snapshot prune completed")
	})
	return s.addJob(cronExpression, job, "snapshot_prune")
}

// RunRefreshNow runs one refresh synchronously, outside the schedule
func (s *Scheduler) RunRefreshNow() {
	s.runRefresh()
}

func (s *Scheduler) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := tracing.Trace(ctx, "calibration.refresh", func(ctx context.Context) error {
		_, err := s.refresher.Refresh(ctx)
		return err
	})
	if err != nil {
		s.logger.WithError(err).Error("Scheduled calibration refresh failed")
		return
	}
	s.logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Scheduled calibration refresh completed")
}

func (s *Scheduler) addJob(cronExpression string, job cron.Job, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	entryID, err := s.cron.AddJob(cronExpression, job)
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithFields(logrus.Fields{"job": name, "schedule": cronExpression}).Info("Scheduled job")
	return nil
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

// Stop waits for running jobs up to the graceful timeout and stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	stopCtx := s.cron.Stop()
	s.isRunning = false

	select {
	case <-stopCtx.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler stop timed out after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() && (nextRun.IsZero() || entry.Next.Before(nextRun)) {
			nextRun = entry.Next
		}
	}
	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		if entry := s.cron.Entry(jobID); entry.Valid() {
			entries = append(entries, entry)
		}
	}
	return entries
}
