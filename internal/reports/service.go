package reports

import (
	"context"
	"errors"
	"fmt"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
	"github.com/rohanmalviya/simian/internal/summary"
)

// ErrReportNotFound is returned when no report exists for the requested key.
var ErrReportNotFound = errors.New("report not found")

// Service serves committed reports to reading surfaces. It never mutates
// state; a temporary summary read mid-run is served as an explicitly-marked
// partial view, which is valid by construction (the runner persists an
// empty temporary summary before folding anything).
type Service struct {
	reports storage.ReportStore
}

// NewService creates the read-side report service.
func NewService(reports storage.ReportStore) *Service {
	return &Service{reports: reports}
}

// UserSummaryView is a summary plus whether it is a mid-run partial view.
type UserSummaryView struct {
	Summary *v1.UserSummary `json:"summary"`
	Partial bool            `json:"partial"`
}

// UserSummary returns the final summary for the window, falling back to
// the finalized view of the in-flight temporary state when no final
// summary has been committed yet.
func (s *Service) UserSummary(ctx context.Context, w Window) (*UserSummaryView, error) {
	final, ok, err := s.reports.GetUserSummary(ctx, w.Tag())
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	if ok {
		return &UserSummaryView{Summary: final}, nil
	}

	state, ok, err := s.reports.GetUserSummaryCheckpoint(ctx, w.Tag())
	if err != nil {
		return nil, fmt.Errorf("read temporary summary: %w", err)
	}
	if !ok {
		return nil, ErrReportNotFound
	}
	acc, err := summary.Decode(state)
	if err != nil {
		return nil, fmt.Errorf("decode temporary summary: %w", err)
	}
	return &UserSummaryView{Summary: acc.Finalize(), Partial: true}, nil
}

// InstallCounts returns the lifetime install counters.
func (s *Service) InstallCounts(ctx context.Context) (v1.InstallCounts, error) {
	counts, ok, err := s.reports.GetInstallCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read install counts: %w", err)
	}
	if !ok {
		return nil, ErrReportNotFound
	}
	return counts, nil
}

// TrendingReport returns the ranked install report for one window length.
func (s *Service) TrendingReport(ctx context.Context, hours int) (*v1.TrendingReport, error) {
	report, ok, err := s.reports.GetTrendingReport(ctx, hours)
	if err != nil {
		return nil, fmt.Errorf("read trending report: %w", err)
	}
	if !ok {
		return nil, ErrReportNotFound
	}
	return report, nil
}
