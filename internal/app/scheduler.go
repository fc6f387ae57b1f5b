/**
 * @description
 * Cron scheduler setup for the lifecycle sweeps.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ebardia/band-it-sub000/internal/config"
)

// Scheduler manages the cron entries for the periodic sweeps.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance. Schedules are interpreted in
// UTC, matching the timestamps the sweeps compare against.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// JobSchedules maps each registered job to its configured cron expression.
// The scheduler and the sweep listing endpoint share this mapping.
func JobSchedules(cfg config.Config) map[string]string {
	return map[string]string{
		JobGracePeriod:              cfg.GraceSweepSchedule,
		JobPaymentAutoConfirm:       cfg.PaymentSweepSchedule,
		JobDonationLifecycle:        cfg.DonationSweepSchedule,
		JobReimbursementAutoConfirm: cfg.ReimbursementSweepSchedule,
		JobVerificationEscalation:   cfg.VerificationSweepSchedule,
	}
}

// Start registers the sweeps and starts the cron scheduler.
func (s *Scheduler) Start() {
	schedules := JobSchedules(s.config)
	for _, job := range s.jobs.JobNames() {
		schedule := schedules[job]
		if _, err := s.cron.AddFunc(schedule, s.jobs.CronHandler(job)); err != nil {
			s.logger.Error("failed to schedule sweep", "job", job, "schedule", schedule, "error", err)
		} else {
			s.logger.Info("scheduled sweep", "job", job, "schedule", schedule)
		}
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler. The returned context is done once
// any in-flight sweep has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
