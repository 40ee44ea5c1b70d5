// Package reports implements the resumable summarization jobs: the
// checkpointed MSU user summary, the lifetime install counters and the
// trending-install ranker, plus the read service that serves their output.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rohanmalviya/simian/internal/core/storage"
	"github.com/rohanmalviya/simian/internal/core/window"
	"github.com/rohanmalviya/simian/internal/summary"
)

// Job identifiers used for deferred re-invocation.
const (
	JobMSUUserSummary = "msu_user_summary"
	JobInstallCounts  = "install_counts"
)

const (
	defaultFetchLimit        = 500
	defaultInstallFetchLimit = 1000
	defaultRuntimeBudget     = 30 * time.Second
	defaultContinuationDelay = 5 * time.Second
)

// ErrMalformedCheckpoint means a resumption cursor exists without its
// matching temporary summary (or the state cannot be decoded). The logical
// run cannot continue safely: restarting from empty would double-count
// events already folded into the persisted partial state, so the invocation
// fails and the lock is left to expire.
var ErrMalformedCheckpoint = errors.New("malformed checkpoint state")

// Options tunes a Runner.
type Options struct {
	// Categories pre-enumerates every valid MSU event type. Events outside
	// it are excluded from all summary fields.
	Categories []string

	// FetchLimit is the page size for the MSU log.
	FetchLimit int

	// InstallFetchLimit is the page size for the install log.
	InstallFetchLimit int

	// RuntimeBudget is the wall-clock budget of one invocation. It is
	// checked after each page; exceeding it checkpoints the run and defers
	// a continuation.
	RuntimeBudget time.Duration

	// ContinuationDelay is how far in the future continuations are
	// scheduled.
	ContinuationDelay time.Duration
}

func (o Options) normalized() Options {
	n := o
	if n.FetchLimit <= 0 {
		n.FetchLimit = defaultFetchLimit
	}
	if n.InstallFetchLimit <= 0 {
		n.InstallFetchLimit = defaultInstallFetchLimit
	}
	if n.RuntimeBudget <= 0 {
		n.RuntimeBudget = defaultRuntimeBudget
	}
	if n.ContinuationDelay <= 0 {
		n.ContinuationDelay = defaultContinuationDelay
	}
	return n
}

// Runner drives the summarization jobs against the collaborator
// capabilities. Each invocation is a single sequential unit of work;
// concurrency only exists across invocations and is serialized by the
// named locks.
type Runner struct {
	msuLog     storage.MSULogSource
	installLog storage.InstallLogSource
	reports    storage.ReportStore
	kv         storage.KeyValueStore
	locks      storage.LockService
	tasks      storage.TaskScheduler
	clock      storage.Clock
	opts       Options
}

// NewRunner wires a Runner. clock may be nil, in which case the system
// clock is used.
func NewRunner(
	msuLog storage.MSULogSource,
	installLog storage.InstallLogSource,
	reports storage.ReportStore,
	kv storage.KeyValueStore,
	locks storage.LockService,
	tasks storage.TaskScheduler,
	clock storage.Clock,
	opts Options,
) *Runner {
	if clock == nil {
		clock = storage.SystemClock{}
	}
	return &Runner{
		msuLog:     msuLog,
		installLog: installLog,
		reports:    reports,
		kv:         kv,
		locks:      locks,
		tasks:      tasks,
		clock:      clock,
		opts:       opts.normalized(),
	}
}

func userSummaryLockName(w Window) string { return "msu_user_summary_lock" + w.suffix() }
func userSummaryCursorKey(w Window) string { return "msu_user_summary_cursor" + w.suffix() }

// GenerateUserSummary runs one invocation of the checkpointed user-summary
// job for the given window. It either completes the logical run and commits
// the final summary, or checkpoints partial state and defers a
// continuation, or no-ops when another invocation holds the window's lock.
func (r *Runner) GenerateUserSummary(ctx context.Context, w Window) error {
	lockName := userSummaryLockName(w)

	held, err := r.locks.TryAcquire(ctx, lockName)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockName, err)
	}
	if !held {
		// Another run is in flight. Expected contention, not an error.
		slog.Debug("[Runner] Summary lock busy, skipping", "lock", lockName)
		return nil
	}

	// From here on, persistence failures return without releasing the lock:
	// the partial state on disk may be ahead of the cursor or vice versa,
	// and a fresh run must not resume from it until the lock expires.
	acc, cursor, err := r.restoreUserSummaryState(ctx, w)
	if err != nil {
		return err
	}

	start := r.clock.Now()
	now := start
	pager := newGroupedPager(r.msuLog, cursor, r.opts.FetchLimit)

	for {
		pg, err := pager.Next(ctx)
		if err != nil {
			return err
		}

		for _, ev := range pg.Records {
			if !w.IsZero() && window.Exceeds(now, ev.Mtime, w.Span()) {
				// Outside the lookback: consumed for cursor advancement,
				// excluded from every summary field.
				continue
			}
			if !acc.Fold(ev) {
				slog.Warn("[Runner] Skipping event with unknown type",
					"event", ev.Event, "user", ev.User)
			}
		}

		if pg.Done {
			return r.commitUserSummary(ctx, w, acc)
		}

		if r.clock.Since(start) > r.opts.RuntimeBudget {
			return r.checkpointUserSummary(ctx, w, acc, pg.Resume)
		}
	}
}

// restoreUserSummaryState loads the prior checkpoint, or initializes a
// fresh run. A fresh run persists its empty temporary summary immediately
// so concurrent readers observe zero rather than stale data for the
// duration of the run.
func (r *Runner) restoreUserSummaryState(ctx context.Context, w Window) (*summary.Accumulator, storage.Cursor, error) {
	rawCursor, haveCursor, err := r.kv.Get(ctx, userSummaryCursorKey(w))
	if err != nil {
		return nil, "", fmt.Errorf("read cursor: %w", err)
	}

	state, haveState, err := r.reports.GetUserSummaryCheckpoint(ctx, w.Tag())
	if err != nil {
		return nil, "", fmt.Errorf("read temporary summary: %w", err)
	}

	if haveCursor {
		if !haveState {
			return nil, "", fmt.Errorf("%w: cursor present without temporary summary (window %q)",
				ErrMalformedCheckpoint, w.Tag())
		}
		acc, err := summary.Decode(state)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedCheckpoint, err)
		}
		slog.Info("[Runner] Resuming user summary run",
			"window", w.Tag(), "partial_events", acc.TotalEvents)
		return acc, storage.Cursor(rawCursor), nil
	}

	// No cursor: run 1 of a fresh logical pass. A leftover temporary
	// summary (crash before the first checkpoint) is discarded — nothing
	// was committed, so restarting from empty is exact.
	acc := summary.New(r.opts.Categories)
	encoded, err := acc.Encode()
	if err != nil {
		return nil, "", err
	}
	if err := r.reports.SetUserSummaryCheckpoint(ctx, w.Tag(), encoded); err != nil {
		return nil, "", fmt.Errorf("init temporary summary: %w", err)
	}
	slog.Info("[Runner] Starting user summary run", "window", w.Tag())
	return acc, storage.CursorStart, nil
}

// checkpointUserSummary persists partial state, defers a continuation and
// releases the lock. The logical run stays open. Ordering matters: the
// temporary summary is written first, then the cursor, then the
// continuation, then the release — a failure at any point leaves the lock
// held and the prior consistent pair intact.
func (r *Runner) checkpointUserSummary(ctx context.Context, w Window, acc *summary.Accumulator, resume storage.Cursor) error {
	encoded, err := acc.Encode()
	if err != nil {
		return err
	}
	if err := r.reports.SetUserSummaryCheckpoint(ctx, w.Tag(), encoded); err != nil {
		return fmt.Errorf("persist temporary summary: %w", err)
	}
	if err := r.kv.Set(ctx, userSummaryCursorKey(w), string(resume)); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	if err := r.tasks.ScheduleAfter(ctx, r.opts.ContinuationDelay, JobMSUUserSummary, w.Tag()); err != nil {
		return fmt.Errorf("schedule continuation: %w", err)
	}
	if err := r.locks.Release(ctx, userSummaryLockName(w)); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	slog.Info("[Runner] Checkpointed user summary run",
		"window", w.Tag(),
		"partial_events", acc.TotalEvents,
		"continuation_delay", r.opts.ContinuationDelay,
	)
	return nil
}

// commitUserSummary finishes the logical run: final summary in, temporary
// state out, lock released.
func (r *Runner) commitUserSummary(ctx context.Context, w Window, acc *summary.Accumulator) error {
	final := acc.Finalize()
	if err := r.reports.SetUserSummary(ctx, w.Tag(), final); err != nil {
		return fmt.Errorf("commit final summary: %w", err)
	}
	if err := r.kv.Delete(ctx, userSummaryCursorKey(w)); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	if err := r.reports.DeleteUserSummaryCheckpoint(ctx, w.Tag()); err != nil {
		return fmt.Errorf("delete temporary summary: %w", err)
	}
	if err := r.locks.Release(ctx, userSummaryLockName(w)); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	slog.Info("[Runner] Committed user summary",
		"window", w.Tag(),
		"total_events", final.TotalEvents,
		"total_users", final.TotalUsers,
		"total_uuids", final.TotalUUIDs,
	)
	return nil
}
