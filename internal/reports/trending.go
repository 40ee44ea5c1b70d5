package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
)

// GenerateTrendingInstalls builds the ranked install report for the last
// `hours` hours in a single pass. Its input is bounded by recency, so there
// is no lock and no checkpoint; the report overwrites any prior one for the
// same window length unconditionally.
func (r *Runner) GenerateTrendingInstalls(ctx context.Context, hours int) error {
	if hours <= 0 {
		return fmt.Errorf("trending window must be positive, got %d", hours)
	}

	now := r.clock.Now()
	installs, err := r.installLog.FetchSince(ctx, now.Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return fmt.Errorf("fetch installs: %w", err)
	}

	successCounts := make(map[string]int64)
	failureCounts := make(map[string]int64)
	for _, ev := range installs {
		if ev.Success {
			successCounts[ev.Package]++
		} else {
			failureCounts[ev.Package]++
		}
	}

	report := &v1.TrendingReport{
		Success:     rankPackages(successCounts),
		Failure:     rankPackages(failureCounts),
		GeneratedAt: now,
	}

	if err := r.reports.SetTrendingReport(ctx, hours, report); err != nil {
		return fmt.Errorf("persist trending report: %w", err)
	}

	slog.Info("[Runner] Generated trending installs",
		"hours", hours,
		"successes", report.Success.Total,
		"failures", report.Failure.Total,
	)
	return nil
}

// rankPackages orders one outcome's packages by count descending, package
// name ascending on ties, and computes each entry's share of the outcome
// total. The tie-break keeps the ranking total-ordered and reproducible.
func rankPackages(counts map[string]int64) v1.TrendingBucket {
	bucket := v1.TrendingBucket{
		Packages: make([]v1.TrendingPackage, 0, len(counts)),
	}
	for pkg, n := range counts {
		bucket.Packages = append(bucket.Packages, v1.TrendingPackage{Package: pkg, Count: n})
		bucket.Total += n
	}

	sort.Slice(bucket.Packages, func(i, j int) bool {
		a, b := bucket.Packages[i], bucket.Packages[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Package < b.Package
	})

	for i := range bucket.Packages {
		bucket.Packages[i].Percent = float64(bucket.Packages[i].Count) / float64(bucket.Total) * 100
	}
	return bucket
}
