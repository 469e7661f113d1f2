// Package scheduler runs the periodic jobs: the manifest check tick
// and the pending-file resend sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// Ticker is the coordinator surface the check job drives.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Scheduler owns the cron runner for both periodic jobs.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger
}

// New builds the scheduler with the manifest check and retry jobs
// registered at their configured intervals.
func New(
	coordinator Ticker,
	retryJob *RetryJob,
	checkInterval, retryInterval time.Duration,
	log logger.Logger,
) (*Scheduler, error) {
	c := cron.New()

	_, err := c.AddFunc(every(checkInterval), func() {
		if err := coordinator.Tick(context.Background()); err != nil {
			log.Error("scheduled archive check failed", logger.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("register check job: %w", err)
	}

	_, err = c.AddFunc(every(retryInterval), func() {
		retryJob.Run(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("register retry job: %w", err)
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins firing the jobs on their intervals.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started")
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func every(interval time.Duration) string {
	return "@every " + interval.String()
}
