package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rohanmalviya/simian/internal/reports"

	"github.com/robfig/cron/v3"
)

// Cron triggers the report jobs on their cadence. Each job guards itself
// with a storage lock, so overlapping triggers are harmless no-ops.
type Cron struct {
	runner        *reports.Runner
	windows       []reports.Window
	trendingHours []int
	interval      time.Duration
	cron          *cron.Cron
}

func NewCron(runner *reports.Runner, windows []reports.Window, trendingHours []int, interval time.Duration) *Cron {
	if runner == nil {
		panic("scheduler: runner must not be nil")
	}
	return &Cron{
		runner:        runner,
		windows:       windows,
		trendingHours: trendingHours,
		interval:      interval,
		cron:          cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the jobs and runs the cron until the context is cancelled.
func (c *Cron) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", c.interval)

	for _, w := range c.windows {
		w := w
		if _, err := c.cron.AddFunc(spec, func() {
			if err := c.runner.GenerateUserSummary(ctx, w); err != nil {
				slog.Error("[Cron] User summary run failed", "window", w.Tag(), "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to register user summary job: %w", err)
		}
	}

	if _, err := c.cron.AddFunc(spec, func() {
		if err := c.runner.GenerateInstallCounts(ctx); err != nil {
			slog.Error("[Cron] Install counts run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to register install counts job: %w", err)
	}

	for _, hours := range c.trendingHours {
		hours := hours
		if _, err := c.cron.AddFunc(spec, func() {
			if err := c.runner.GenerateTrendingInstalls(ctx, hours); err != nil {
				slog.Error("[Cron] Trending run failed", "hours", hours, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to register trending job: %w", err)
		}
	}

	slog.Info("[Cron] Starting report jobs",
		"interval", c.interval,
		"windows", len(c.windows),
		"trending_reports", len(c.trendingHours))

	c.cron.Start()
	<-ctx.Done()

	slog.Info("[Cron] Stopping (context cancelled)")
	stopCtx := c.cron.Stop()

	// Let in-flight jobs finish; they checkpoint on their own budget anyway.
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		slog.Warn("[Cron] Shutdown timed out waiting for running jobs")
	}
	return nil
}
