package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/controllers"
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron          *cron.Cron
	watcherCtrl   *controllers.WatcherController
	queueCtrl     *controllers.QueueController
	cleanupCtrl   *controllers.CleanupController
	watchInterval int
	logger        *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(
	watcherCtrl *controllers.WatcherController,
	queueCtrl *controllers.QueueController,
	cleanupCtrl *controllers.CleanupController,
	watchInterval int,
	logger *logrus.Logger,
) *Scheduler {
	if watchInterval < 1 {
		watchInterval = 30
	}
	return &Scheduler{
		cron:          cron.New(),
		watcherCtrl:   watcherCtrl,
		queueCtrl:     queueCtrl,
		cleanupCtrl:   cleanupCtrl,
		watchInterval: watchInterval,
		logger:        logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Polling fallback for placeholder files the filesystem watch missed
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", s.watchInterval), func() {
		s.runScan()
	})
	if err != nil {
		return fmt.Errorf("failed to add watch scan job: %w", err)
	}

	// Fill free download slots from the queue
	_, err = s.cron.AddFunc("@every 5s", func() {
		s.runSchedule()
	})
	if err != nil {
		return fmt.Errorf("failed to add queue job: %w", err)
	}

	// Flag downloads that stopped making progress
	_, err = s.cron.AddFunc("@every 1m", func() {
		s.runStallSweep()
	})
	if err != nil {
		return fmt.Errorf("failed to add stall sweep job: %w", err)
	}

	// Nightly retention cleanup
	_, err = s.cron.AddFunc("0 3 * * *", func() {
		s.runCleanup()
	})
	if err != nil {
		return fmt.Errorf("failed to add cleanup job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Catch up on anything dropped or queued while the service was down
	go func() {
		s.runScan()
		s.runSchedule()
	}()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// The frequent jobs stay silent on success; their controllers log the
// interesting transitions themselves.

func (s *Scheduler) runScan() {
	if err := s.watcherCtrl.Scan(context.Background()); err != nil {
		s.logger.WithError(err).Error("Watch directory scan failed")
	}
}

func (s *Scheduler) runSchedule() {
	if err := s.queueCtrl.Schedule(context.Background()); err != nil {
		s.logger.WithError(err).Error("Queue scheduling failed")
	}
}

func (s *Scheduler) runStallSweep() {
	if err := s.queueCtrl.SweepStalled(context.Background()); err != nil {
		s.logger.WithError(err).Error("Stall sweep failed")
	}
}

func (s *Scheduler) runCleanup() {
	s.logger.Info("Running scheduled cleanup")
	if err := s.cleanupCtrl.Run(context.Background()); err != nil {
		s.logger.WithError(err).Error("Cleanup job failed")
	}
}
