package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/rohanmalviya/simian/internal/core/storage"
	"github.com/rohanmalviya/simian/internal/reports"
)

const claimBatchSize = 10

// Dispatcher polls the deferred task queue and resumes checkpointed runs.
// Tasks are claimed destructively; a run that needs to continue again
// re-defers itself when it checkpoints.
type Dispatcher struct {
	runner   *reports.Runner
	tasks    storage.TaskQueue
	interval time.Duration
}

func NewDispatcher(runner *reports.Runner, tasks storage.TaskQueue, interval time.Duration) *Dispatcher {
	if runner == nil {
		panic("scheduler: runner must not be nil")
	}
	if tasks == nil {
		panic("scheduler: task queue must not be nil")
	}
	return &Dispatcher{
		runner:   runner,
		tasks:    tasks,
		interval: interval,
	}
}

// Start polls for due tasks until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("[Dispatcher] Starting deferred task dispatcher", "interval", d.interval)

	for {
		select {
		case <-ticker.C:
			d.dispatchDue(ctx)
		case <-ctx.Done():
			slog.Info("[Dispatcher] Stopping (context cancelled)")
			return nil
		}
	}
}

func (d *Dispatcher) dispatchDue(ctx context.Context) {
	due, err := d.tasks.ClaimDue(ctx, claimBatchSize)
	if err != nil {
		slog.Error("[Dispatcher] Failed to claim due tasks", "error", err)
		return
	}

	for _, task := range due {
		if err := d.dispatch(ctx, task); err != nil {
			slog.Error("[Dispatcher] Task failed",
				"job", task.Job,
				"window", task.WindowTag,
				"error", err)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, task storage.Task) error {
	slog.Debug("[Dispatcher] Dispatching task", "job", task.Job, "window", task.WindowTag)

	switch task.Job {
	case reports.JobMSUUserSummary:
		w, err := reports.ParseWindow(task.WindowTag)
		if err != nil {
			return err
		}
		return d.runner.GenerateUserSummary(ctx, w)
	case reports.JobInstallCounts:
		return d.runner.GenerateInstallCounts(ctx)
	default:
		slog.Warn("[Dispatcher] Dropping task with unknown job", "job", task.Job)
		return nil
	}
}
