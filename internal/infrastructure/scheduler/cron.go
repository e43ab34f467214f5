package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"TelegramWarehouse/internal/ports"
	"TelegramWarehouse/pkg/logger"
)

// CronScheduler fires jobs on a cron expression. Overlapping runs are skipped
// so a slow pipeline never runs twice at once.
type CronScheduler struct {
	spec       string
	location   *time.Location
	runOnStart bool
	log        cron.Logger

	mu   sync.Mutex
	cron *cron.Cron
	done chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// Options tunes the cron driver.
type Options struct {
	Location   *time.Location
	RunOnStart bool
}

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, opts Options, log *slog.Logger) *CronScheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &CronScheduler{
		spec:       spec,
		location:   opts.Location,
		runOnStart: opts.RunOnStart,
		log:        logger.Cron(log),
	}
}

// Start registers job and begins firing. It returns once the cron loop is
// running; the loop stops on Stop or when ctx is cancelled.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler job is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(c.log),
		cron.WithChain(cron.Recover(c.log), cron.SkipIfStillRunning(c.log)),
	)
	id, err := cr.AddFunc(c.spec, func() { job(time.Now().In(c.location)) })
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", c.spec, err)
	}

	c.cron = cr
	c.done = make(chan struct{})
	cr.Start()

	if c.runOnStart {
		go cr.Entry(id).WrappedJob.Run()
	}

	done := c.done
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop(context.Background())
		case <-done:
		}
	}()

	return nil
}

// Stop halts the cron loop and waits for a running job, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr, done := c.cron, c.done
	c.cron, c.done = nil, nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}
	close(done)

	select {
	case <-cr.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation, or the zero time when not started.
func (c *CronScheduler) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return time.Time{}
	}
	entries := c.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
