package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rohanmalviya/simian/internal/core/storage"
)

// ScheduleAfter implements storage.TaskScheduler.
func (a *Adapter) ScheduleAfter(ctx context.Context, delay time.Duration, job, windowTag string) error {
	runAfter := time.Now().UTC().Add(delay)
	if _, err := a.db.ExecContext(ctx, queryTaskSchedule,
		uuid.New(), job, windowTag, runAfter); err != nil {
		return fmt.Errorf("schedule task %s: %w", job, err)
	}
	return nil
}

// ClaimDue implements storage.TaskQueue. SKIP LOCKED makes the claim safe
// against concurrent dispatchers: each due task is handed out once.
func (a *Adapter) ClaimDue(ctx context.Context, limit int) ([]storage.Task, error) {
	rows, err := a.db.QueryContext(ctx, queryTaskClaim, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var out []storage.Task
	for rows.Next() {
		var t storage.Task
		if err := rows.Scan(&t.Job, &t.WindowTag); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	return out, nil
}
