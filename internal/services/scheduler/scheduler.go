// Package scheduler fires the periodic board reset.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/tileclaim/internal/dependencies/clock"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/robfig/cron/v3"
)

// DefaultSpec resets the board at midnight UTC
const DefaultSpec = "0 0 * * *"

// Resetter performs a reset unless one already happened since boundary
type Resetter interface {
	ResetSince(ctx context.Context, boundary time.Time) (*model.ResetOutcome, error)
}

// Scheduler runs the reset on a cron schedule evaluated in UTC.
// Firings missed while the process was down are not replayed.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	cron     *cron.Cron
	resets   Resetter
	clock    clock.Clock
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates a Scheduler for a standard five-field cron spec
func New(spec string, resets Resetter, clk clock.Clock, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", spec, err)
	}

	logger = logger.With(slog.String("component", "scheduler"))
	s := &Scheduler{
		spec:     spec,
		schedule: schedule,
		resets:   resets,
		clock:    clk,
		logger:   logger,
		timeout:  30 * time.Second,
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: logger}), cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)
	s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

// Start begins firing in the background
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		slog.String("spec", s.spec),
		slog.Time("next", s.Next()),
	)
	s.cron.Start()
}

// Stop stops firing and waits for a running reset to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next time the reset fires
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.clock.Now().UTC())
}

// Trigger runs the reset for a firing at the given instant
func (s *Scheduler) Trigger(ctx context.Context, at time.Time) (*model.ResetOutcome, error) {
	boundary := at.UTC().Truncate(time.Minute)
	outcome, err := s.resets.ResetSince(ctx, boundary)
	if err != nil {
		s.logger.Error("scheduled reset failed",
			slog.Time("boundary", boundary),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.logger.Info("scheduled reset",
		slog.Time("boundary", boundary),
		slog.String("status", string(outcome.Status)),
		slog.String("reason", outcome.Reason),
		slog.Int64("generation", outcome.Generation),
	)
	return outcome, nil
}

func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.Trigger(ctx, s.clock.Now())
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)...)
}
