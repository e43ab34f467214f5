package usecase

import (
	"context"
	"log/slog"
	"time"

	"TelegramWarehouse/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	job      Job
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs of job.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, job: job, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.pipeline.Run(ctx, s.job, trigger)
		if err != nil {
			s.logger.Error("scheduled run failed", "job", string(s.job), "run_id", report.RunID, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
