// Package window implements the lookback predicate used to decide whether
// an event timestamp still falls inside a configured recency window.
package window

import "time"

// Span is a lookback magnitude expressed in exactly one unit.
// Construct it with Seconds, Minutes, Hours or Days.
type Span struct {
	d time.Duration
}

func Seconds(n int64) Span { return Span{time.Duration(n) * time.Second} }
func Minutes(n int64) Span { return Span{time.Duration(n) * time.Minute} }
func Hours(n int64) Span   { return Span{time.Duration(n) * time.Hour} }
func Days(n int64) Span    { return Span{time.Duration(n) * 24 * time.Hour} }

// Duration returns the span as a time.Duration.
func (s Span) Duration() time.Duration { return s.d }

// Within reports whether candidate is no older than span relative to ref.
// The boundary is inclusive: a candidate exactly span older than ref is
// still within.
func Within(ref, candidate time.Time, s Span) bool {
	return ref.Sub(candidate) <= s.d
}

// Exceeds reports whether candidate is older than ref by strictly more
// than span. It is the complement of Within.
func Exceeds(ref, candidate time.Time, s Span) bool {
	return !Within(ref, candidate, s)
}
