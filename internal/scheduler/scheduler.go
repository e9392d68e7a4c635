package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Task func(ctx context.Context) error

// Spec is either a fixed interval or a cron expression; Cron wins when both
// are set.
type Spec struct {
	Every time.Duration
	Cron  string
}

// Run blocks until ctx is done, running task on the given schedule.
func Run(ctx context.Context, spec Spec, name string, task Task, log zerolog.Logger) error {
	switch {
	case spec.Cron != "":
		return Cron(ctx, spec.Cron, name, task, log)
	case spec.Every > 0:
		Every(ctx, spec.Every, name, task, log)
		return nil
	default:
		return errors.New("scheduler: empty schedule")
	}
}

// Every runs task immediately and then on every tick. A run that overlaps a
// tick delays it instead of stacking up.
func Every(ctx context.Context, interval time.Duration, name string, task Task, log zerolog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	runTask(ctx, name, task, log)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runTask(ctx, name, task, log)
		}
	}
}

// Cron runs task on a standard five-field cron expression (descriptors
// such as @hourly are accepted). Runs that would overlap are skipped.
func Cron(ctx context.Context, expr, name string, task Task, log zerolog.Logger) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc(expr, func() { runTask(ctx, name, task, log) }); err != nil {
		return err
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Next reports when expr fires next after from.
func Next(expr string, from time.Time) (time.Time, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from), nil
}

func runTask(ctx context.Context, name string, task Task, log zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}
	if err := task(ctx); err != nil {
		log.Error().Err(err).Str("task", name).Msg("scheduled run failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
