// Package scheduler runs pipeline cycles with a fixed pause between them and
// retries failed cycles after a delay.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/track-enrichment/internal/enrich"
	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/pipeline"
)

// Runner runs one pipeline cycle.
type Runner interface {
	RunCycle(ctx context.Context) (*enrich.BatchReport, error)
	SetSleeping()
}

// Config holds the cycle interval and retry delays.
type Config struct {
	Interval          time.Duration
	RetryDelay        time.Duration
	MissingInputDelay time.Duration
}

// Scheduler periodically runs pipeline cycles. It implements suture.Service.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a new Scheduler.
func New(cfg Config, runner Runner) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		cfg:       cfg,
		sleep:     sleep,
	}
}

var panicHandlerOnce sync.Once

// Serve runs the first cycle immediately. Each following cycle starts one
// interval after the previous job finished, retries included. Serve blocks
// until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	panicHandlerOnce.Do(func() {
		gocron.SetPanicHandler(func(job string, r interface{}) {
			logging.Error().Str("job", job).Interface("panic", r).Msg("scheduled job panicked")
		})
	})
	s.scheduler.Clear()
	if err := s.schedule(ctx, time.Time{}); err != nil {
		return err
	}

	logging.Info().Dur("interval", s.cfg.Interval).Msg("scheduler started")
	s.scheduler.StartAsync()
	<-ctx.Done()
	s.Stop()
	logging.Info().Msg("scheduler stopped")
	return ctx.Err()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) String() string { return "scheduler" }

// schedule adds a one-shot job running at start, or immediately when start
// is zero.
func (s *Scheduler) schedule(ctx context.Context, start time.Time) error {
	job := s.scheduler.Every(s.cfg.Interval).LimitRunsTo(1)
	if !start.IsZero() {
		job = job.StartAt(start)
	}
	_, err := job.Do(s.runJob, ctx)
	return err
}

// runJob runs cycles until one succeeds or ctx is done, then schedules the
// next job one interval later. A failed cycle is retried from the start
// after nextDelay.
func (s *Scheduler) runJob(ctx context.Context) {
	s.retryUntilSuccess(ctx)
	if ctx.Err() != nil {
		return
	}
	next := time.Now().Add(s.cfg.Interval)
	if err := s.schedule(ctx, next); err != nil {
		logging.Error().Err(err).Msg("schedule next cycle failed")
		return
	}
	logging.Info().Time("next_run", next).Msg("next cycle scheduled")
}

func (s *Scheduler) retryUntilSuccess(ctx context.Context) {
	defer s.runner.SetSleeping()
	for attempt := 1; ; attempt++ {
		err := s.runCycle(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		delay := s.nextDelay(err)
		logging.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("cycle failed, retrying")
		s.runner.SetSleeping()
		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// runCycle runs one cycle and turns a panic into an error.
func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
			logging.Error().Interface("panic", r).Msg("cycle panicked")
		}
	}()
	_, err = s.runner.RunCycle(ctx)
	return err
}

// nextDelay returns how long to wait before retrying after err.
func (s *Scheduler) nextDelay(err error) time.Duration {
	if errors.Is(err, pipeline.ErrMissingInput) {
		return s.cfg.MissingInputDelay
	}
	return s.cfg.RetryDelay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
