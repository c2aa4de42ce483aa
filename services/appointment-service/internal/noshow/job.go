// Package noshow runs the periodic maintenance of appointments: the no-show sweep
// and the purge of expired trash.
package noshow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/DemianF-dev/7pet-mvp-sub007/libs/otel"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultSchedule = "@every 15m"

type Sweeper interface {
	SweepNoShows(ctx context.Context) (lifecycle.SweepResult, error)
	PurgeExpiredTrash(ctx context.Context) (int, error)
}

type Report struct {
	lifecycle.SweepResult
	Purged int `json:"purged"`
}

type Job struct {
	sweeper  Sweeper
	logger   *slog.Logger
	schedule cron.Schedule
	timeout  time.Duration

	// mu keeps scheduled and manual runs from overlapping.
	mu sync.Mutex
}

func New(sweeper Sweeper, logger *slog.Logger, schedule string, timeout time.Duration) (*Job, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Job{sweeper: sweeper, logger: logger, schedule: sched, timeout: timeout}, nil
}

// Run schedules the job and blocks until ctx is cancelled, then waits for a running
// sweep to finish.
func (j *Job) Run(ctx context.Context) error {
	cl := cronLogger{logger: j.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(j.schedule, cron.FuncJob(func() {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("scheduled sweep failed", "err", err)
		}
	}))

	c.Start()
	j.logger.Info("no-show sweep scheduled", "next", j.schedule.Next(time.Now()))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce runs the sweep and the trash purge. Both steps run even when the first
// fails.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	ctx, span := otelx.Tracer("noshow").Start(ctx, "noshow.run")
	defer span.End()

	var rep Report
	res, sweepErr := j.sweeper.SweepNoShows(ctx)
	rep.SweepResult = res
	purged, purgeErr := j.sweeper.PurgeExpiredTrash(ctx)
	rep.Purged = purged

	span.SetAttributes(
		attribute.Int("noshow.marked", rep.Marked),
		attribute.Int("noshow.blocked", rep.Blocked),
		attribute.Int("trash.purged", rep.Purged),
	)
	if purgeErr != nil {
		purgeErr = fmt.Errorf("purge trash: %w", purgeErr)
	}
	if sweepErr != nil {
		sweepErr = fmt.Errorf("no-show sweep: %w", sweepErr)
	}
	err := errors.Join(sweepErr, purgeErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "maintenance run failed")
	}
	return rep, err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
