package postgres

// SQL for the summarization engine's storage capabilities.

const (
	// queryAppendMSUEvent appends one MSU interaction report.
	queryAppendMSUEvent = `
		INSERT INTO msu_log (uuid, username, event, mtime)
		VALUES ($1, $2, $3, $4)
	`

	// queryFetchMSUFirstPage reads the first page of the grouped ordering.
	// The (username, mtime, seq) order keeps one user's events contiguous,
	// which is what lets the pager hold whole groups back at checkpoint
	// boundaries.
	queryFetchMSUFirstPage = `
		SELECT uuid, username, event, mtime, seq
		FROM msu_log
		ORDER BY username, mtime, seq
		LIMIT $1
	`

	// queryFetchMSUAfterCursor resumes the same ordering after a keyset
	// cursor. Row-value comparison keeps the scan index-only.
	queryFetchMSUAfterCursor = `
		SELECT uuid, username, event, mtime, seq
		FROM msu_log
		WHERE (username, mtime, seq) > ($1, $2, $3)
		ORDER BY username, mtime, seq
		LIMIT $4
	`

	queryAppendInstallEvent = `
		INSERT INTO install_log (package, applesus, success, duration_seconds, mtime, server_datetime)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	// The install log is totally ordered by arrival time; its cursor is a
	// (server_datetime, seq) keyset.
	queryFetchInstallFirstPage = `
		SELECT package, applesus, success, duration_seconds, mtime, server_datetime, seq
		FROM install_log
		ORDER BY server_datetime, seq
		LIMIT $1
	`

	queryFetchInstallAfterCursor = `
		SELECT package, applesus, success, duration_seconds, mtime, server_datetime, seq
		FROM install_log
		WHERE (server_datetime, seq) > ($1, $2)
		ORDER BY server_datetime, seq
		LIMIT $3
	`

	queryFetchInstallsSince = `
		SELECT package, applesus, success, duration_seconds, mtime, server_datetime, seq
		FROM install_log
		WHERE mtime > $1
		ORDER BY server_datetime, seq
	`

	queryKVGet = `SELECT value FROM kv_store WHERE key = $1`

	queryKVSet = `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	queryKVDelete = `DELETE FROM kv_store WHERE key = $1`

	queryReportGet = `SELECT payload FROM report_cache WHERE key = $1`

	queryReportSet = `
		INSERT INTO report_cache (key, payload, mtime)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, mtime = EXCLUDED.mtime
	`

	queryReportDelete = `DELETE FROM report_cache WHERE key = $1`

	// queryLockAcquire takes the named lock iff it is free or expired.
	// No returned row means the lock is held by someone else.
	queryLockAcquire = `
		INSERT INTO locks (name, acquired_at, expires_at)
		VALUES ($1, now(), now() + $2::interval)
		ON CONFLICT (name) DO UPDATE
		SET acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
		WHERE locks.expires_at <= now()
		RETURNING name
	`

	queryLockRelease = `DELETE FROM locks WHERE name = $1`

	queryTaskSchedule = `
		INSERT INTO deferred_tasks (id, job, window_tag, run_after, created_at)
		VALUES ($1, $2, $3, $4, now())
	`

	// queryTaskClaim hands each due task to exactly one dispatcher even
	// when several poll concurrently.
	queryTaskClaim = `
		DELETE FROM deferred_tasks
		WHERE id IN (
			SELECT id FROM deferred_tasks
			WHERE run_after <= now()
			ORDER BY run_after
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job, window_tag
	`
)
