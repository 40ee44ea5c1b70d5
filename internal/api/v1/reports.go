package v1

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserSummary is the committed output of one logical summarization run:
// per-event-type counts plus derived cardinalities and a distribution of
// users by how many events they contributed.
//
// Invariants: TotalEvents equals the sum of Events; the bucket counts,
// weighted by their N, also sum to TotalEvents.
type UserSummary struct {
	// Events maps every configured event type to its count. All configured
	// types are present, zero-valued when unseen.
	Events map[string]int64 `json:"events"`

	TotalEvents int64 `json:"total_events"`

	// TotalUsers is the number of distinct console users seen.
	TotalUsers int64 `json:"total_users"`

	// TotalUUIDs is the number of distinct reporting machines seen.
	TotalUUIDs int64 `json:"total_uuids"`

	// UserEventBuckets[N] is the number of users that contributed exactly
	// N events ("total_users_N_events").
	UserEventBuckets map[int64]int64 `json:"total_users_n_events"`
}

// PackageInstallCounts is the lifetime counter record for one package.
// Values are cumulative across every run ever; only the average is
// recomputed, everything else is monotonically non-decreasing.
type PackageInstallCounts struct {
	InstallCount         int64 `json:"install_count"`
	InstallFailCount     int64 `json:"install_fail_count"`
	AppleSUS             bool  `json:"applesus"`
	DurationCount        int64 `json:"duration_count"`
	DurationTotalSeconds int64 `json:"duration_total_seconds"`

	// DurationSecondsAvg is DurationTotalSeconds / DurationCount, or null
	// when no install has reported a duration yet.
	DurationSecondsAvg *decimal.Decimal `json:"duration_seconds_avg"`
}

// InstallCounts maps package name to its lifetime counters.
type InstallCounts map[string]*PackageInstallCounts

// TrendingPackage is one ranked entry of a trending report.
type TrendingPackage struct {
	Package string `json:"package"`
	Count   int64  `json:"count"`

	// Percent is Count relative to the total of same-outcome installs in
	// the window, in [0, 100].
	Percent float64 `json:"percent"`
}

// TrendingBucket holds the ranked packages for one outcome.
type TrendingBucket struct {
	Packages []TrendingPackage `json:"packages"`
	Total    int64             `json:"total"`
}

// TrendingReport ranks install activity over a bounded recency window.
// It is regenerated from scratch and overwrites any prior report for the
// same window length.
type TrendingReport struct {
	Success     TrendingBucket `json:"success"`
	Failure     TrendingBucket `json:"failure"`
	GeneratedAt time.Time      `json:"generated_at"`
}
