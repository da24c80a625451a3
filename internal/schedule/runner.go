// Package schedule runs periodic screening sweeps on a cron schedule.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Debrato2005/OrbitOps/internal/analysis"
	"github.com/Debrato2005/OrbitOps/internal/feed"
)

// Sweeper is the part of analysis.Service the runner drives.
type Sweeper interface {
	SweepAll(ctx context.Context, primaries []int, src feed.Source) (analysis.SweepReport, error)
}

// Runner owns a cron scheduler whose jobs inherit a base context.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

// New creates a Runner. A sweep still in progress when its next tick fires
// is not started twice.
func New(baseCtx context.Context, logger *slog.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cl := cronLogger{logger: logger}
	return &Runner{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec (standard five-field or @every/@hourly form).
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// AddSweep registers a full sweep over primaries, optionally ingesting src
// first.
func (r *Runner) AddSweep(spec string, s Sweeper, primaries []int, src feed.Source) (cron.EntryID, error) {
	return r.Add(spec, SweepJob(s, primaries, src, r.logger))
}

// SweepJob returns the job body used by AddSweep.
func SweepJob(s Sweeper, primaries []int, src feed.Source, logger *slog.Logger) func(context.Context) {
	return func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		report, err := s.SweepAll(ctx, primaries, src)
		if err != nil {
			logger.Error("scheduled sweep failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		logger.Info("scheduled sweep complete",
			"primaries", report.Primaries,
			"written", report.Written,
			"planned", report.Planned,
			"failed", report.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Start begins running scheduled jobs in the background.
func (r *Runner) Start() {
	r.logger.Info("scheduler started", "entries", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
