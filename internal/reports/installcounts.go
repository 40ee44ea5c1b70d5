package reports

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
)

const (
	installCountsLockName  = "pkgs_list_cron_lock"
	installCountsCursorKey = "pkgs_list_cursor"
)

// GenerateInstallCounts runs one invocation of the lifetime install-counter
// merger. Unlike the user summary this is not a point-in-time snapshot: the
// persisted counters are a running total merged additively after every
// page, and the job reschedules itself unconditionally so the log is
// reprocessed continuously.
func (r *Runner) GenerateInstallCounts(ctx context.Context) error {
	held, err := r.locks.TryAcquire(ctx, installCountsLockName)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", installCountsLockName, err)
	}
	if !held {
		slog.Debug("[Runner] Install counts lock busy, skipping")
		return nil
	}

	// Persistence failures below leave the lock held until expiry, same as
	// the user-summary runner.
	counts, ok, err := r.reports.GetInstallCounts(ctx)
	if err != nil {
		return fmt.Errorf("read install counts: %w", err)
	}
	if !ok {
		counts = make(v1.InstallCounts)
	}

	rawCursor, _, err := r.kv.Get(ctx, installCountsCursorKey)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	recs, err := r.installLog.FetchPage(ctx, storage.Cursor(rawCursor), r.opts.InstallFetchLimit)
	if err != nil {
		return fmt.Errorf("fetch install page: %w", err)
	}

	if len(recs) == 0 {
		// Caught up: this pass is over. Begin the next one after the
		// continuation delay.
		if err := r.tasks.ScheduleAfter(ctx, r.opts.ContinuationDelay, JobInstallCounts, ""); err != nil {
			return fmt.Errorf("schedule next pass: %w", err)
		}
		if err := r.locks.Release(ctx, installCountsLockName); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}

	for _, rec := range recs {
		mergeInstall(counts, rec.Event)
	}

	if err := r.reports.SetInstallCounts(ctx, counts); err != nil {
		return fmt.Errorf("persist install counts: %w", err)
	}
	if err := r.kv.Set(ctx, installCountsCursorKey, string(recs[len(recs)-1].After)); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	// More pages may remain; continue the pass immediately.
	if err := r.tasks.ScheduleAfter(ctx, 0, JobInstallCounts, ""); err != nil {
		return fmt.Errorf("schedule continuation: %w", err)
	}
	if err := r.locks.Release(ctx, installCountsLockName); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	slog.Info("[Runner] Merged install counts page",
		"installs", len(recs),
		"packages", len(counts),
	)
	return nil
}

// mergeInstall folds one install event into the lifetime counters.
// Successes raise install_count and, when a duration was reported, the
// duration sample accumulators; failures raise install_fail_count only.
// The average is recomputed from count/total on every merge.
func mergeInstall(counts v1.InstallCounts, ev v1.InstallEvent) {
	c, ok := counts[ev.Package]
	if !ok {
		c = &v1.PackageInstallCounts{}
		counts[ev.Package] = c
	}

	c.AppleSUS = ev.AppleSUS
	if ev.Success {
		c.InstallCount++
		if ev.DurationSeconds != nil {
			c.DurationCount++
			c.DurationTotalSeconds += *ev.DurationSeconds
		}
	} else {
		c.InstallFailCount++
	}

	if c.DurationCount > 0 {
		avg := decimal.NewFromInt(c.DurationTotalSeconds).
			Div(decimal.NewFromInt(c.DurationCount))
		c.DurationSecondsAvg = &avg
	} else {
		c.DurationSecondsAvg = nil
	}
}
