// Package schedule drives the session clock from cron specs with a seconds
// field.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "sleepalarm/internal/log"
	"sleepalarm/internal/notify"
)

// Ticker is the part of session.Session the runner drives.
type Ticker interface {
	Tick(ctx context.Context) []notify.Firing
	ResetDay(ctx context.Context) bool
}

// Runner owns the cron instance. Jobs run with the context given to Start
// and never overlap with themselves.
type Runner struct {
	cron   *cron.Cron
	ticker Ticker
	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger routes cron's own messages through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// New registers the tick and day-reset jobs. Both specs use six fields
// ("sec min hour dom month dow") or a descriptor such as "@every 1s".
func New(t Ticker, tickSpec, resetSpec string) (*Runner, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	r := &Runner{cron: c, ticker: t, ctx: context.Background()}

	if _, err := c.AddFunc(tickSpec, r.tick); err != nil {
		return nil, fmt.Errorf("schedule: tick spec %q: %w", tickSpec, err)
	}
	if _, err := c.AddFunc(resetSpec, r.resetDay); err != nil {
		return nil, fmt.Errorf("schedule: day reset spec %q: %w", resetSpec, err)
	}
	return r, nil
}

// Start runs the jobs in the background until Stop or ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron.Start()
	appLog.Info("scheduler started", "jobs", len(r.cron.Entries()))
}

// Stop halts scheduling and waits for running jobs, or for ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	defer func() {
		if r.cancel != nil {
			r.cancel()
		}
	}()
	select {
	case <-done.Done():
		appLog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("schedule: stop: %w", ctx.Err())
	}
}

func (r *Runner) tick() {
	r.ticker.Tick(r.ctx)
}

func (r *Runner) resetDay() {
	if r.ticker.ResetDay(r.ctx) {
		appLog.Debug("day reset job cleared trigger log")
	}
}
