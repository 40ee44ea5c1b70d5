// Package storage defines the collaborator capabilities the summarization
// engine consumes: the ordered event logs, the key-value checkpoint store,
// the report cache, the lock service, the deferred-task scheduler and the
// clock. Adapters live in the postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
)

// ErrNotFound is returned by lookups for keys that were never written.
var ErrNotFound = errors.New("not found")

// Cursor is an opaque resumption token bound to one position in an ordered
// log. It is only valid for resuming the exact same query ordering it was
// produced by.
type Cursor string

// CursorStart is the position before the first record.
const CursorStart Cursor = ""

// PositionedMSUEvent pairs an MSU event with the cursor positioned
// immediately after it.
type PositionedMSUEvent struct {
	Event v1.MSUEvent
	After Cursor
}

// PositionedInstallEvent pairs an install event with the cursor positioned
// immediately after it.
type PositionedInstallEvent struct {
	Event v1.InstallEvent
	After Cursor
}

// MSULogSource pages through the MSU event log ordered by
// (user, mtime, sequence), so that one user's events are contiguous.
// Ordering must be stable across calls with the same cursor.
type MSULogSource interface {
	// FetchPage returns up to limit events positioned after cursor.
	// A short (or empty) page means the log has no further events.
	FetchPage(ctx context.Context, cursor Cursor, limit int) ([]PositionedMSUEvent, error)
}

// MSULogAppender appends to the MSU event log. Used by ingestion only; the
// summarization engine never mutates the log.
type MSULogAppender interface {
	AppendMSUEvent(ctx context.Context, ev *v1.MSUEvent) error
}

// InstallLogSource pages through the install log ordered by
// (server_datetime, sequence).
type InstallLogSource interface {
	FetchPage(ctx context.Context, cursor Cursor, limit int) ([]PositionedInstallEvent, error)

	// FetchSince returns every install with mtime strictly after since.
	// Input volume is bounded by recency, so there is no pagination.
	FetchSince(ctx context.Context, since time.Time) ([]v1.InstallEvent, error)
}

// InstallLogAppender appends to the install log.
type InstallLogAppender interface {
	AppendInstallEvent(ctx context.Context, ev *v1.InstallEvent) error
}

// KeyValueStore is the checkpoint store for resumption cursors.
type KeyValueStore interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ReportStore persists the produced reports: final and temporary user
// summaries keyed by window tag, lifetime install counters, and trending
// reports keyed by window length.
type ReportStore interface {
	GetUserSummary(ctx context.Context, windowTag string) (*v1.UserSummary, bool, error)
	SetUserSummary(ctx context.Context, windowTag string, s *v1.UserSummary) error

	// The checkpoint is the serialized partial accumulator state of an
	// in-flight logical run. It is owned by whichever invocation holds the
	// run's lock; everyone else may only read it as a partial view.
	GetUserSummaryCheckpoint(ctx context.Context, windowTag string) ([]byte, bool, error)
	SetUserSummaryCheckpoint(ctx context.Context, windowTag string, state []byte) error
	DeleteUserSummaryCheckpoint(ctx context.Context, windowTag string) error

	GetInstallCounts(ctx context.Context) (v1.InstallCounts, bool, error)
	SetInstallCounts(ctx context.Context, counts v1.InstallCounts) error

	GetTrendingReport(ctx context.Context, hours int) (*v1.TrendingReport, bool, error)
	SetTrendingReport(ctx context.Context, hours int, r *v1.TrendingReport) error
}

// LockService provides named, fail-fast mutual exclusion across
// invocations. Acquisition never blocks: contention is reported, not
// queued. Locks expire on their own so a crashed holder cannot wedge the
// system forever.
type LockService interface {
	// TryAcquire reports whether the lock was obtained.
	TryAcquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// Task is one deferred invocation request.
type Task struct {
	Job       string
	WindowTag string
}

// TaskScheduler defers a re-invocation of a job.
type TaskScheduler interface {
	ScheduleAfter(ctx context.Context, delay time.Duration, job, windowTag string) error
}

// TaskQueue is the dispatcher-side view of the deferred-task store.
type TaskQueue interface {
	TaskScheduler

	// ClaimDue atomically removes and returns up to limit due tasks.
	ClaimDue(ctx context.Context, limit int) ([]Task, error)
}

// Clock abstracts wall-clock time so runtime budgets are testable.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                  { return time.Now().UTC() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }
