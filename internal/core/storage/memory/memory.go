// Package memory provides in-memory implementations of every storage
// capability. They back the "memory" database type and the unit tests; the
// cursor and lock semantics match the postgres adapters.
package memory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
)

// MSULog is an in-memory MSU event log with keyset cursor pagination
// ordered by (user, mtime, seq).
type MSULog struct {
	mu      sync.Mutex
	events  []msuRecord
	nextSeq int64
}

type msuRecord struct {
	ev  v1.MSUEvent
	seq int64
}

type msuCursor struct {
	User  string    `json:"u"`
	Mtime time.Time `json:"m"`
	Seq   int64     `json:"s"`
}

func NewMSULog() *MSULog { return &MSULog{nextSeq: 1} }

// AppendMSUEvent implements storage.MSULogAppender.
func (l *MSULog) AppendMSUEvent(_ context.Context, ev *v1.MSUEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, msuRecord{ev: *ev, seq: l.nextSeq})
	l.nextSeq++
	return nil
}

// FetchPage implements storage.MSULogSource.
func (l *MSULog) FetchPage(_ context.Context, cursor storage.Cursor, limit int) ([]storage.PositionedMSUEvent, error) {
	l.mu.Lock()
	ordered := make([]msuRecord, len(l.events))
	copy(ordered, l.events)
	l.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ev.User != b.ev.User {
			return a.ev.User < b.ev.User
		}
		if !a.ev.Mtime.Equal(b.ev.Mtime) {
			return a.ev.Mtime.Before(b.ev.Mtime)
		}
		return a.seq < b.seq
	})

	var after msuCursor
	if cursor != storage.CursorStart {
		if err := decodeCursor(cursor, &after); err != nil {
			return nil, err
		}
	}

	var out []storage.PositionedMSUEvent
	for _, rec := range ordered {
		if cursor != storage.CursorStart && !msuAfter(rec, after) {
			continue
		}
		pos := msuCursor{User: rec.ev.User, Mtime: rec.ev.Mtime, Seq: rec.seq}
		out = append(out, storage.PositionedMSUEvent{Event: rec.ev, After: encodeCursor(pos)})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func msuAfter(rec msuRecord, c msuCursor) bool {
	if rec.ev.User != c.User {
		return rec.ev.User > c.User
	}
	if !rec.ev.Mtime.Equal(c.Mtime) {
		return rec.ev.Mtime.After(c.Mtime)
	}
	return rec.seq > c.Seq
}

// InstallLog is an in-memory install log ordered by (server_datetime, seq).
type InstallLog struct {
	mu      sync.Mutex
	events  []installRecord
	nextSeq int64
}

type installRecord struct {
	ev  v1.InstallEvent
	seq int64
}

type installCursor struct {
	ServerDatetime time.Time `json:"d"`
	Seq            int64     `json:"s"`
}

func NewInstallLog() *InstallLog { return &InstallLog{nextSeq: 1} }

// AppendInstallEvent implements storage.InstallLogAppender.
func (l *InstallLog) AppendInstallEvent(_ context.Context, ev *v1.InstallEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := installRecord{ev: *ev, seq: l.nextSeq}
	if rec.ev.ServerDatetime.IsZero() {
		rec.ev.ServerDatetime = time.Now().UTC()
	}
	l.events = append(l.events, rec)
	l.nextSeq++
	return nil
}

// FetchPage implements storage.InstallLogSource.
func (l *InstallLog) FetchPage(_ context.Context, cursor storage.Cursor, limit int) ([]storage.PositionedInstallEvent, error) {
	l.mu.Lock()
	ordered := make([]installRecord, len(l.events))
	copy(ordered, l.events)
	l.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.ev.ServerDatetime.Equal(b.ev.ServerDatetime) {
			return a.ev.ServerDatetime.Before(b.ev.ServerDatetime)
		}
		return a.seq < b.seq
	})

	var after installCursor
	if cursor != storage.CursorStart {
		if err := decodeCursor(cursor, &after); err != nil {
			return nil, err
		}
	}

	var out []storage.PositionedInstallEvent
	for _, rec := range ordered {
		if cursor != storage.CursorStart {
			if rec.ev.ServerDatetime.Before(after.ServerDatetime) {
				continue
			}
			if rec.ev.ServerDatetime.Equal(after.ServerDatetime) && rec.seq <= after.Seq {
				continue
			}
		}
		pos := installCursor{ServerDatetime: rec.ev.ServerDatetime, Seq: rec.seq}
		out = append(out, storage.PositionedInstallEvent{Event: rec.ev, After: encodeCursor(pos)})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FetchSince implements storage.InstallLogSource.
func (l *InstallLog) FetchSince(_ context.Context, since time.Time) ([]v1.InstallEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []v1.InstallEvent
	for _, rec := range l.events {
		if rec.ev.Mtime.After(since) {
			out = append(out, rec.ev)
		}
	}
	return out, nil
}

// KeyValueStore is a mutex-guarded map.
type KeyValueStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{values: make(map[string]string)}
}

func (s *KeyValueStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *KeyValueStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *KeyValueStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// ReportStore keeps every report as serialized JSON so readers get deep
// copies, same as a database-backed store would.
type ReportStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewReportStore() *ReportStore {
	return &ReportStore{entries: make(map[string][]byte)}
}

func (s *ReportStore) get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	data, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode report %s: %w", key, err)
	}
	return true, nil
}

func (s *ReportStore) set(key string, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", key, err)
	}
	s.mu.Lock()
	s.entries[key] = data
	s.mu.Unlock()
	return nil
}

func userSummaryKey(tag string) string    { return "msu_user_summary:" + tag }
func userCheckpointKey(tag string) string { return "msu_user_summary_tmp:" + tag }
func trendingKey(hours int) string        { return fmt.Sprintf("trending:%dh", hours) }

const installCountsKey = "install_counts"

func (s *ReportStore) GetUserSummary(_ context.Context, tag string) (*v1.UserSummary, bool, error) {
	var out v1.UserSummary
	ok, err := s.get(userSummaryKey(tag), &out)
	if !ok || err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

func (s *ReportStore) SetUserSummary(_ context.Context, tag string, sum *v1.UserSummary) error {
	return s.set(userSummaryKey(tag), sum)
}

func (s *ReportStore) GetUserSummaryCheckpoint(_ context.Context, tag string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.entries[userCheckpointKey(tag)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (s *ReportStore) SetUserSummaryCheckpoint(_ context.Context, tag string, state []byte) error {
	cp := make([]byte, len(state))
	copy(cp, state)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userCheckpointKey(tag)] = cp
	return nil
}

func (s *ReportStore) DeleteUserSummaryCheckpoint(_ context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userCheckpointKey(tag))
	return nil
}

func (s *ReportStore) GetInstallCounts(_ context.Context) (v1.InstallCounts, bool, error) {
	out := make(v1.InstallCounts)
	ok, err := s.get(installCountsKey, &out)
	if !ok || err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (s *ReportStore) SetInstallCounts(_ context.Context, counts v1.InstallCounts) error {
	return s.set(installCountsKey, counts)
}

func (s *ReportStore) GetTrendingReport(_ context.Context, hours int) (*v1.TrendingReport, bool, error) {
	var out v1.TrendingReport
	ok, err := s.get(trendingKey(hours), &out)
	if !ok || err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

func (s *ReportStore) SetTrendingReport(_ context.Context, hours int, r *v1.TrendingReport) error {
	return s.set(trendingKey(hours), r)
}

// LockService holds named locks with a fixed TTL.
type LockService struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock storage.Clock
	held  map[string]time.Time // name -> expiry
}

func NewLockService(ttl time.Duration, clock storage.Clock) *LockService {
	if clock == nil {
		clock = storage.SystemClock{}
	}
	return &LockService{ttl: ttl, clock: clock, held: make(map[string]time.Time)}
}

func (s *LockService) TryAcquire(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if expiry, ok := s.held[name]; ok && expiry.After(now) {
		return false, nil
	}
	s.held[name] = now.Add(s.ttl)
	return true, nil
}

func (s *LockService) Release(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, name)
	return nil
}

// TaskQueue is an in-memory deferred-task store.
type TaskQueue struct {
	mu    sync.Mutex
	clock storage.Clock
	tasks []scheduledTask
}

type scheduledTask struct {
	task  storage.Task
	dueAt time.Time
}

func NewTaskQueue(clock storage.Clock) *TaskQueue {
	if clock == nil {
		clock = storage.SystemClock{}
	}
	return &TaskQueue{clock: clock}
}

func (q *TaskQueue) ScheduleAfter(_ context.Context, delay time.Duration, job, windowTag string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, scheduledTask{
		task:  storage.Task{Job: job, WindowTag: windowTag},
		dueAt: q.clock.Now().Add(delay),
	})
	return nil
}

func (q *TaskQueue) ClaimDue(_ context.Context, limit int) ([]storage.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	var due []storage.Task
	var rest []scheduledTask
	for _, st := range q.tasks {
		if len(due) < limit && !st.dueAt.After(now) {
			due = append(due, st.task)
			continue
		}
		rest = append(rest, st)
	}
	q.tasks = rest
	return due, nil
}

func encodeCursor(v interface{}) storage.Cursor {
	data, _ := json.Marshal(v)
	return storage.Cursor(base64.StdEncoding.EncodeToString(data))
}

func decodeCursor(c storage.Cursor, out interface{}) error {
	data, err := base64.StdEncoding.DecodeString(string(c))
	if err != nil {
		return fmt.Errorf("decode cursor: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode cursor: %w", err)
	}
	return nil
}
