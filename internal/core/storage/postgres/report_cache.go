package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
)

// Report cache keys. Window-tagged variants get ":<tag>" appended so each
// window owns independent rows.

func userSummaryKey(tag string) string    { return "msu_user_summary:" + tag }
func userCheckpointKey(tag string) string { return "msu_user_summary_tmp:" + tag }
func trendingKey(hours int) string        { return fmt.Sprintf("trending:%dh", hours) }

const installCountsKey = "install_counts"

func (a *Adapter) getReport(ctx context.Context, key string, out interface{}) (bool, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, queryReportGet, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("report get %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("report decode %s: %w", key, err)
	}
	return true, nil
}

func (a *Adapter) setReport(ctx context.Context, key string, in interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("report encode %s: %w", key, err)
	}
	if _, err := a.db.ExecContext(ctx, queryReportSet, key, payload); err != nil {
		return fmt.Errorf("report set %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) deleteReport(ctx context.Context, key string) error {
	if _, err := a.db.ExecContext(ctx, queryReportDelete, key); err != nil {
		return fmt.Errorf("report delete %s: %w", key, err)
	}
	return nil
}

// GetUserSummary implements storage.ReportStore.
func (a *Adapter) GetUserSummary(ctx context.Context, tag string) (*v1.UserSummary, bool, error) {
	var out v1.UserSummary
	ok, err := a.getReport(ctx, userSummaryKey(tag), &out)
	if !ok || err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

// SetUserSummary implements storage.ReportStore.
func (a *Adapter) SetUserSummary(ctx context.Context, tag string, s *v1.UserSummary) error {
	return a.setReport(ctx, userSummaryKey(tag), s)
}

// GetUserSummaryCheckpoint implements storage.ReportStore. The checkpoint
// payload is stored as-is; it is the runner's serialized accumulator state.
func (a *Adapter) GetUserSummaryCheckpoint(ctx context.Context, tag string) ([]byte, bool, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, queryReportGet, userCheckpointKey(tag)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint get %s: %w", tag, err)
	}
	return payload, true, nil
}

// SetUserSummaryCheckpoint implements storage.ReportStore.
func (a *Adapter) SetUserSummaryCheckpoint(ctx context.Context, tag string, state []byte) error {
	if _, err := a.db.ExecContext(ctx, queryReportSet, userCheckpointKey(tag), state); err != nil {
		return fmt.Errorf("checkpoint set %s: %w", tag, err)
	}
	return nil
}

// DeleteUserSummaryCheckpoint implements storage.ReportStore.
func (a *Adapter) DeleteUserSummaryCheckpoint(ctx context.Context, tag string) error {
	return a.deleteReport(ctx, userCheckpointKey(tag))
}

// GetInstallCounts implements storage.ReportStore.
func (a *Adapter) GetInstallCounts(ctx context.Context) (v1.InstallCounts, bool, error) {
	out := make(v1.InstallCounts)
	ok, err := a.getReport(ctx, installCountsKey, &out)
	if !ok || err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// SetInstallCounts implements storage.ReportStore.
func (a *Adapter) SetInstallCounts(ctx context.Context, counts v1.InstallCounts) error {
	return a.setReport(ctx, installCountsKey, counts)
}

// GetTrendingReport implements storage.ReportStore.
func (a *Adapter) GetTrendingReport(ctx context.Context, hours int) (*v1.TrendingReport, bool, error) {
	var out v1.TrendingReport
	ok, err := a.getReport(ctx, trendingKey(hours), &out)
	if !ok || err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

// SetTrendingReport implements storage.ReportStore.
func (a *Adapter) SetTrendingReport(ctx context.Context, hours int, r *v1.TrendingReport) error {
	return a.setReport(ctx, trendingKey(hours), r)
}
