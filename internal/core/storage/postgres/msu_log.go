package postgres

import (
	"context"
	"database/sql"
	"fmt"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
)

// MSULog is the adapter's view over the msu_log table. It implements
// storage.MSULogSource and storage.MSULogAppender.
type MSULog struct {
	db *sql.DB
}

// MSULog returns the MSU event log backed by this adapter.
func (a *Adapter) MSULog() *MSULog { return &MSULog{db: a.db} }

func (l *MSULog) AppendMSUEvent(ctx context.Context, ev *v1.MSUEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, queryAppendMSUEvent,
		ev.UUID, ev.User, ev.Event, ev.Mtime); err != nil {
		return fmt.Errorf("append msu event: %w", err)
	}
	return nil
}

func (l *MSULog) FetchPage(ctx context.Context, cursor storage.Cursor, limit int) ([]storage.PositionedMSUEvent, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if cursor == storage.CursorStart {
		rows, err = l.db.QueryContext(ctx, queryFetchMSUFirstPage, limit)
	} else {
		var c msuCursor
		if decErr := decodeCursor(cursor, &c); decErr != nil {
			return nil, decErr
		}
		rows, err = l.db.QueryContext(ctx, queryFetchMSUAfterCursor, c.User, c.Mtime, c.Seq, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch msu page: %w", err)
	}
	defer rows.Close()

	var out []storage.PositionedMSUEvent
	for rows.Next() {
		var (
			ev  v1.MSUEvent
			seq int64
		)
		if err := rows.Scan(&ev.UUID, &ev.User, &ev.Event, &ev.Mtime, &seq); err != nil {
			return nil, fmt.Errorf("scan msu event: %w", err)
		}
		after, err := encodeCursor(msuCursor{User: ev.User, Mtime: ev.Mtime, Seq: seq})
		if err != nil {
			return nil, err
		}
		out = append(out, storage.PositionedMSUEvent{Event: ev, After: after})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch msu page: %w", err)
	}
	return out, nil
}
