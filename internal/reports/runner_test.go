package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
	"github.com/rohanmalviya/simian/internal/core/storage/memory"
	"github.com/stretchr/testify/require"
)

var testCategories = []string{
	"launched",
	"exit_later_clicked",
	"exit_installwithlogout",
	"conns_on_corp",
	"conns_off_corp",
}

// fakeClock reports a fixed now and a settable elapsed duration, so tests
// decide deterministically whether a run exhausts its budget.
type fakeClock struct {
	now     time.Time
	elapsed time.Duration
}

func (c *fakeClock) Now() time.Time                { return c.now }
func (c *fakeClock) Since(time.Time) time.Duration { return c.elapsed }

type runnerFixture struct {
	runner  *Runner
	msuLog  *memory.MSULog
	reports storage.ReportStore
	kv      *memory.KeyValueStore
	locks   *memory.LockService
	tasks   *memory.TaskQueue
	clock   *fakeClock
}

func newRunnerFixture(t *testing.T, opts Options) *runnerFixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	f := &runnerFixture{
		msuLog:  memory.NewMSULog(),
		reports: memory.NewReportStore(),
		kv:      memory.NewKeyValueStore(),
		locks:   memory.NewLockService(10*time.Minute, clock),
		tasks:   memory.NewTaskQueue(clock),
		clock:   clock,
	}
	if opts.Categories == nil {
		opts.Categories = testCategories
	}
	f.runner = NewRunner(f.msuLog, memory.NewInstallLog(), f.reports, f.kv, f.locks, f.tasks, clock, opts)
	return f
}

func (f *runnerFixture) appendMSU(t *testing.T, user, event string, mtime time.Time) {
	t.Helper()
	require.NoError(t, f.msuLog.AppendMSUEvent(context.Background(), &v1.MSUEvent{
		UUID:  "uuid-" + user,
		User:  user,
		Event: event,
		Mtime: mtime,
	}))
}

func (f *runnerFixture) dueTasks(t *testing.T) []storage.Task {
	t.Helper()
	// Everything scheduled becomes due once enough time passes.
	f.clock.now = f.clock.now.Add(time.Hour)
	due, err := f.tasks.ClaimDue(context.Background(), 100)
	require.NoError(t, err)
	f.clock.now = f.clock.now.Add(-time.Hour)
	return due
}

func TestGenerateUserSummary_EmptyLogCommitsZeroSummary(t *testing.T) {
	f := newRunnerFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.runner.GenerateUserSummary(ctx, AllTime))

	sum, ok, err := f.reports.GetUserSummary(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, sum.TotalEvents)
	require.Zero(t, sum.TotalUsers)
	require.Zero(t, sum.TotalUUIDs)
	// Every configured category is present with a zero count.
	require.Len(t, sum.Events, len(testCategories))
	for _, cat := range testCategories {
		require.Contains(t, sum.Events, cat)
		require.Zero(t, sum.Events[cat])
	}

	// The run closed cleanly: no cursor, no temporary state, lock free.
	_, ok, err = f.kv.Get(ctx, "msu_user_summary_cursor")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = f.reports.GetUserSummaryCheckpoint(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)
	held, err := f.locks.TryAcquire(ctx, "msu_user_summary_lock")
	require.NoError(t, err)
	require.True(t, held)
}

func TestGenerateUserSummary_SingleUserCounts(t *testing.T) {
	f := newRunnerFixture(t, Options{})
	ctx := context.Background()
	now := f.clock.now

	f.appendMSU(t, "a", "launched", now.Add(-3*time.Hour))
	f.appendMSU(t, "a", "launched", now.Add(-2*time.Hour))
	f.appendMSU(t, "a", "exit_later_clicked", now.Add(-time.Hour))
	// Same user reporting from a second machine.
	require.NoError(t, f.msuLog.AppendMSUEvent(ctx, &v1.MSUEvent{
		UUID: "uuid-a2", User: "a", Event: "launched", Mtime: now.Add(-30 * time.Minute),
	}))

	require.NoError(t, f.runner.GenerateUserSummary(ctx, AllTime))

	sum, ok, err := f.reports.GetUserSummary(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), sum.Events["launched"])
	require.Equal(t, int64(1), sum.Events["exit_later_clicked"])
	require.Zero(t, sum.Events["conns_on_corp"])
	require.Equal(t, int64(4), sum.TotalEvents)
	require.Equal(t, int64(1), sum.TotalUsers)
	require.Equal(t, int64(2), sum.TotalUUIDs)
	require.Equal(t, map[int64]int64{4: 1}, sum.UserEventBuckets)
}

func TestGenerateUserSummary_UnknownEventTypeExcluded(t *testing.T) {
	f := newRunnerFixture(t, Options{})
	ctx := context.Background()
	now := f.clock.now

	f.appendMSU(t, "a", "launched", now.Add(-time.Hour))
	f.appendMSU(t, "a", "not_a_real_event", now.Add(-30*time.Minute))

	require.NoError(t, f.runner.GenerateUserSummary(ctx, AllTime))

	sum, _, err := f.reports.GetUserSummary(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.TotalEvents)
	require.NotContains(t, sum.Events, "not_a_real_event")
}

func TestGenerateUserSummary_DayWindowExcludesOldEvents(t *testing.T) {
	f := newRunnerFixture(t, Options{})
	ctx := context.Background()
	now := f.clock.now
	day := Window{Days: 1}

	// 86500s old: outside the 1-day lookback. 86400s exactly: on the
	// boundary, included.
	f.appendMSU(t, "a", "launched", now.Add(-86500*time.Second))
	f.appendMSU(t, "a", "launched", now.Add(-86400*time.Second))
	f.appendMSU(t, "b", "launched", now.Add(-time.Hour))

	require.NoError(t, f.runner.GenerateUserSummary(ctx, day))

	sum, ok, err := f.reports.GetUserSummary(ctx, "1D")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), sum.TotalEvents)
	require.Equal(t, int64(2), sum.TotalUsers)

	// The all-time slot is untouched by a windowed run.
	_, ok, err = f.reports.GetUserSummary(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenerateUserSummary_BudgetExceededCheckpointsAndDefers(t *testing.T) {
	f := newRunnerFixture(t, Options{FetchLimit: 4, RuntimeBudget: 30 * time.Second})
	ctx := context.Background()
	now := f.clock.now

	for _, user := range []string{"a", "a", "a", "b", "b", "c"} {
		f.appendMSU(t, user, "launched", now.Add(-time.Hour))
	}

	// Every budget check sees the budget blown, so the run checkpoints
	// after its first page.
	f.clock.elapsed = time.Minute
	require.NoError(t, f.runner.GenerateUserSummary(ctx, AllTime))

	// Partial state on disk, no final summary yet.
	_, ok, err := f.reports.GetUserSummary(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = f.reports.GetUserSummaryCheckpoint(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	cursor, ok, err := f.kv.Get(ctx, "msu_user_summary_cursor")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, cursor)

	// A continuation was deferred and the lock came free.
	due := f.dueTasks(t)
	require.Len(t, due, 1)
	require.Equal(t, storage.Task{Job: JobMSUUserSummary, WindowTag: ""}, due[0])
	held, err := f.locks.TryAcquire(ctx, "msu_user_summary_lock")
	require.NoError(t, err)
	require.True(t, held)
	require.NoError(t, f.locks.Release(ctx, "msu_user_summary_lock"))

	// The continuation finishes the run.
	f.clock.elapsed = 0
	require.NoError(t, f.runner.GenerateUserSummary(ctx, AllTime))

	sum, ok, err := f.reports.GetUserSummary(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(6), sum.TotalEvents)
	require.Equal(t, int64(3), sum.TotalUsers)
	require.Equal(t, map[int64]int64{3: 1, 2: 1, 1: 1}, sum.UserEventBuckets)

	// Run state was cleaned up on commit.
	_, ok, err = f.kv.Get(ctx, "msu_user_summary_cursor")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = f.reports.GetUserSummaryCheckpoint(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenerateUserSummary_ResumedRunMatchesUninterrupted(t *testing.T) {
	seed := func(f *runnerFixture, t *testing.T) {
		now := f.clock.now
		for i, user := range []string{"a", "a", "b", "b", "b", "c", "d", "d"} {
			event := testCategories[i%len(testCategories)]
			f.appendMSU(t, user, event, now.Add(-time.Duration(i+1)*time.Minute))
		}
	}

	// Uninterrupted run.
	direct := newRunnerFixture(t, Options{FetchLimit: 4})
	seed(direct, t)
	require.NoError(t, direct.runner.GenerateUserSummary(context.Background(), AllTime))
	want, _, err := direct.reports.GetUserSummary(context.Background(), "")
	require.NoError(t, err)

	// Same data, checkpointed after every page until done.
	resumed := newRunnerFixture(t, Options{FetchLimit: 4, RuntimeBudget: 30 * time.Second})
	seed(resumed, t)
	resumed.clock.elapsed = time.Minute
	for i := 0; i < 10; i++ {
		require.NoError(t, resumed.runner.GenerateUserSummary(context.Background(), AllTime))
		if _, ok, err := resumed.reports.GetUserSummary(context.Background(), ""); err == nil && ok {
			break
		}
	}

	got, ok, err := resumed.reports.GetUserSummary(context.Background(), "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestGenerateUserSummary_WindowedRunUsesTaggedState(t *testing.T) {
	f := newRunnerFixture(t, Options{FetchLimit: 2, RuntimeBudget: 30 * time.Second})
	ctx := context.Background()
	now := f.clock.now

	for _, user := range []string{"a", "b", "c", "d"} {
		f.appendMSU(t, user, "launched", now.Add(-time.Hour))
	}

	f.clock.elapsed = time.Minute
	require.NoError(t, f.runner.GenerateUserSummary(ctx, Window{Days: 1}))

	// State is keyed per window, so the daily run cannot collide with the
	// all-time one.
	_, ok, err := f.kv.Get(ctx, "msu_user_summary_cursor_1D")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = f.kv.Get(ctx, "msu_user_summary_cursor")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = f.reports.GetUserSummaryCheckpoint(ctx, "1D")
	require.NoError(t, err)
	require.True(t, ok)

	due := f.dueTasks(t)
	require.Len(t, due, 1)
	require.Equal(t, "1D", due[0].WindowTag)
}

func TestGenerateUserSummary_LockContentionIsNoOp(t *testing.T) {
	f := newRunnerFixture(t, Options{})
	ctx := context.Background()

	f.appendMSU(t, "a", "launched", f.clock.now.Add(-time.Hour))

	held, err := f.locks.TryAcquire(ctx, "msu_user_summary_lock")
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, f.runner.GenerateUserSummary(ctx, AllTime))

	// Nothing was read, written or scheduled.
	_, ok, err := f.reports.GetUserSummary(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, f.dueTasks(t))
}

func TestGenerateUserSummary_CursorWithoutStateIsMalformed(t *testing.T) {
	f := newRunnerFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.kv.Set(ctx, "msu_user_summary_cursor", "orphaned"))

	err := f.runner.GenerateUserSummary(ctx, AllTime)
	require.ErrorIs(t, err, ErrMalformedCheckpoint)

	// The lock is kept so no other invocation resumes from the broken
	// state; TTL expiry is the way out.
	held, lockErr := f.locks.TryAcquire(ctx, "msu_user_summary_lock")
	require.NoError(t, lockErr)
	require.False(t, held)
}

func TestGenerateUserSummary_CorruptCheckpointIsMalformed(t *testing.T) {
	f := newRunnerFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.kv.Set(ctx, "msu_user_summary_cursor", "somewhere"))
	require.NoError(t, f.reports.SetUserSummaryCheckpoint(ctx, "", []byte("{not json")))

	err := f.runner.GenerateUserSummary(ctx, AllTime)
	require.ErrorIs(t, err, ErrMalformedCheckpoint)
}

// failingReportStore makes checkpoint writes fail after n successes.
type failingReportStore struct {
	*memory.ReportStore
	failAfter int
	writes    int
}

func (s *failingReportStore) SetUserSummaryCheckpoint(ctx context.Context, tag string, state []byte) error {
	s.writes++
	if s.writes > s.failAfter {
		return errors.New("disk full")
	}
	return s.ReportStore.SetUserSummaryCheckpoint(ctx, tag, state)
}

func TestGenerateUserSummary_PersistenceFailureKeepsLock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	msuLog := memory.NewMSULog()
	store := &failingReportStore{ReportStore: memory.NewReportStore(), failAfter: 0}
	locks := memory.NewLockService(10*time.Minute, clock)
	runner := NewRunner(msuLog, memory.NewInstallLog(), store, memory.NewKeyValueStore(),
		locks, memory.NewTaskQueue(clock), clock, Options{Categories: testCategories})

	err := runner.GenerateUserSummary(context.Background(), AllTime)
	require.Error(t, err)

	held, lockErr := locks.TryAcquire(context.Background(), "msu_user_summary_lock")
	require.NoError(t, lockErr)
	require.False(t, held)
}
