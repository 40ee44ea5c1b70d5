package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
)

// InstallLog is the adapter's view over the install_log table. It implements
// storage.InstallLogSource and storage.InstallLogAppender.
type InstallLog struct {
	db *sql.DB
}

// InstallLog returns the install log backed by this adapter.
func (a *Adapter) InstallLog() *InstallLog { return &InstallLog{db: a.db} }

func (l *InstallLog) AppendInstallEvent(ctx context.Context, ev *v1.InstallEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	serverDatetime := ev.ServerDatetime
	if serverDatetime.IsZero() {
		serverDatetime = time.Now().UTC()
	}
	var duration sql.NullInt64
	if ev.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: *ev.DurationSeconds, Valid: true}
	}
	if _, err := l.db.ExecContext(ctx, queryAppendInstallEvent,
		ev.Package, ev.AppleSUS, ev.Success, duration, ev.Mtime, serverDatetime); err != nil {
		return fmt.Errorf("append install event: %w", err)
	}
	return nil
}

func (l *InstallLog) FetchPage(ctx context.Context, cursor storage.Cursor, limit int) ([]storage.PositionedInstallEvent, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if cursor == storage.CursorStart {
		rows, err = l.db.QueryContext(ctx, queryFetchInstallFirstPage, limit)
	} else {
		var c installCursor
		if decErr := decodeCursor(cursor, &c); decErr != nil {
			return nil, decErr
		}
		rows, err = l.db.QueryContext(ctx, queryFetchInstallAfterCursor, c.ServerDatetime, c.Seq, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch install page: %w", err)
	}
	defer rows.Close()

	var out []storage.PositionedInstallEvent
	for rows.Next() {
		ev, seq, err := scanInstall(rows)
		if err != nil {
			return nil, err
		}
		after, err := encodeCursor(installCursor{ServerDatetime: ev.ServerDatetime, Seq: seq})
		if err != nil {
			return nil, err
		}
		out = append(out, storage.PositionedInstallEvent{Event: ev, After: after})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch install page: %w", err)
	}
	return out, nil
}

func (l *InstallLog) FetchSince(ctx context.Context, since time.Time) ([]v1.InstallEvent, error) {
	rows, err := l.db.QueryContext(ctx, queryFetchInstallsSince, since)
	if err != nil {
		return nil, fmt.Errorf("fetch installs since: %w", err)
	}
	defer rows.Close()

	var out []v1.InstallEvent
	for rows.Next() {
		ev, _, err := scanInstall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch installs since: %w", err)
	}
	return out, nil
}

func scanInstall(rows *sql.Rows) (v1.InstallEvent, int64, error) {
	var (
		ev       v1.InstallEvent
		duration sql.NullInt64
		seq      int64
	)
	if err := rows.Scan(&ev.Package, &ev.AppleSUS, &ev.Success, &duration,
		&ev.Mtime, &ev.ServerDatetime, &seq); err != nil {
		return v1.InstallEvent{}, 0, fmt.Errorf("scan install event: %w", err)
	}
	if duration.Valid {
		ev.DurationSeconds = &duration.Int64
	}
	return ev, seq, nil
}
