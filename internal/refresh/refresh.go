// Package refresh re-runs a job on a cron schedule until its context ends.
package refresh

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "skolcal/internal/log"
)

// Job is one regeneration run.
type Job func(ctx context.Context) error

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether spec is an accepted schedule: five or six fields,
// or a descriptor such as "@daily" or "@every 1h".
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Run runs job on spec until ctx is done. A run that is still in progress
// when the next tick fires causes that tick to be skipped, so at most one job
// is active at a time. Job errors are logged, not returned.
func Run(ctx context.Context, spec string, job Job) error {
	logger := appLog.CronLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(spec, func() {
		appLog.Info("scheduled refresh start", "schedule", spec)
		if err := job(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err, "schedule", spec)
			return
		}
		appLog.Info("scheduled refresh done", "schedule", spec)
	})
	if err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}

	c.Start()
	appLog.Info("refresh scheduler started", "schedule", spec)

	<-ctx.Done()

	// Wait for a running job to finish before returning.
	<-c.Stop().Done()
	appLog.Info("refresh scheduler stopped")
	return nil
}
