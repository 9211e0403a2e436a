package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/duespay/duespay/internal/config"
	"github.com/duespay/duespay/internal/domain/billingschedule"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/service"
	"github.com/robfig/cron/v3"
)

// RunReport summarizes one scheduler run.
type RunReport struct {
	Date      time.Time     `json:"date"`
	Due       int           `json:"due"`
	Succeeded int           `json:"succeeded"`
	Retried   int           `json:"retried"`
	Suspended int           `json:"suspended"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// Scheduler owns the daily billing run. It is instantiated once at
// startup and passed by reference to anything that triggers or queries
// it; there is no process-wide global.
type Scheduler struct {
	cfg          config.SchedulerConfig
	billing      service.BillingService
	scheduleRepo billingschedule.Repository
	delay        time.Duration
	logger       *logger.Logger

	cron *cron.Cron
	// running guards re-entrancy: one run per process, a trigger during a
	// run is a no-op.
	running atomic.Bool
	// suspended pauses future runs without cancelling an in-flight
	// gateway call.
	suspended atomic.Bool

	lastReport atomic.Pointer[RunReport]
}

// New creates the scheduler.
func New(cfg config.SchedulerConfig, billingCfg config.BillingConfig, billing service.BillingService, scheduleRepo billingschedule.Repository, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		billing:      billing,
		scheduleRepo: scheduleRepo,
		delay:        billingCfg.InterChargeDelay,
		logger:       log,
		cron:         cron.New(),
	}
}

// Start registers the daily trigger and, if configured, kicks off a
// catch-up run covering triggers missed during downtime.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.DailyRunSpec, func() {
		if _, err := s.Run(context.Background(), time.Now().UTC()); err != nil {
			s.logger.Errorw("scheduled billing run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Infow("billing scheduler started", "daily_run_spec", s.cfg.DailyRunSpec)

	if s.cfg.CatchUpOnStart {
		go func() {
			if _, err := s.Run(ctx, time.Now().UTC()); err != nil {
				s.logger.Errorw("catch-up billing run failed", "error", err)
			}
		}()
	}
	return nil
}

// Stop stops future triggers. An in-flight run finishes on its own;
// financial requests are never hard-cancelled mid-flight.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Suspend pauses future runs; Resume re-enables them.
func (s *Scheduler) Suspend() { s.suspended.Store(true) }
func (s *Scheduler) Resume()  { s.suspended.Store(false) }

// LastReport returns the report of the most recent completed run, or nil.
func (s *Scheduler) LastReport() *RunReport {
	return s.lastReport.Load()
}

// Run drives every due schedule through one charge attempt, serially and
// separated by a fixed delay. A failure on one schedule is contained and
// the rest are still attempted. Returns nil, nil when another run is
// already in progress or the scheduler is suspended.
func (s *Scheduler) Run(ctx context.Context, date time.Time) (*RunReport, error) {
	if s.suspended.Load() {
		s.logger.Infow("scheduler suspended, skipping run")
		return nil, nil
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Infow("billing run already in progress, trigger ignored")
		return nil, nil
	}
	defer s.running.Store(false)

	started := time.Now()
	report := &RunReport{Date: date}

	due, err := s.scheduleRepo.DueToday(ctx, date)
	if err != nil {
		return nil, err
	}
	report.Due = len(due)

	s.logger.Infow("starting billing run",
		"date", date.Format("2006-01-02"),
		"due_schedules", len(due))

	for i, schedule := range due {
		if i > 0 && s.delay > 0 {
			// Fixed inter-charge delay keeps the gateway within its
			// throughput expectations and the audit trail in
			// deterministic order.
			time.Sleep(s.delay)
		}

		s.processOne(ctx, schedule.ID, report)
	}

	report.Duration = time.Since(started)
	s.lastReport.Store(report)

	s.logger.Infow("billing run completed",
		"date", date.Format("2006-01-02"),
		"due", report.Due,
		"succeeded", report.Succeeded,
		"retried", report.Retried,
		"suspended", report.Suspended,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"duration", report.Duration.String())

	return report, nil
}

// processOne contains a single schedule's attempt, including panics, so
// one bad schedule cannot take down the run.
func (s *Scheduler) processOne(ctx context.Context, scheduleID string, report *RunReport) {
	defer func() {
		if r := recover(); r != nil {
			report.Errors++
			s.logger.Errorw("panic while processing schedule",
				"schedule_id", scheduleID,
				"panic", r)
		}
	}()

	outcome, err := s.billing.ProcessScheduleCharge(ctx, scheduleID)
	if err != nil {
		report.Errors++
		s.logger.Errorw("unexpected error processing schedule",
			"schedule_id", scheduleID,
			"error", err)
		return
	}

	switch outcome {
	case service.OutcomeSucceeded:
		report.Succeeded++
	case service.OutcomeRetryScheduled:
		report.Retried++
	case service.OutcomeSuspended:
		report.Suspended++
	case service.OutcomeSkipped:
		report.Skipped++
	}
}
