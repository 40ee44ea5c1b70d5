// Package summary implements the aggregate accumulator behind the MSU user
// summary: an associative fold of events into per-type counts, distinct
// cardinalities and a per-user event distribution.
//
// The accumulator's exported state is JSON-serializable and round-trips
// losslessly, which is what makes checkpointed resumption exact: fold two
// disjoint event sets into two accumulators and Merge them, and you get the
// same finalized summary as folding the union into one.
package summary

import (
	"encoding/json"
	"fmt"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
)

// Accumulator is the mutable working state of one logical summarization run.
type Accumulator struct {
	// Events holds per-event-type counts. Every configured type is present
	// from construction, zero-valued.
	Events map[string]int64 `json:"events"`

	// TotalEvents is the number of folded events. Always equals the sum of
	// Events.
	TotalEvents int64 `json:"total_events"`

	// UserEvents counts folded events per console user. Buckets are derived
	// from it at finalize time, so a user whose events land in different
	// invocations still ends up in the right bucket.
	UserEvents map[string]int64 `json:"user_events"`

	// UUIDs is the distinct set of reporting machines seen.
	UUIDs map[string]bool `json:"uuids"`
}

// New returns an empty accumulator with every category pre-enumerated.
func New(categories []string) *Accumulator {
	a := &Accumulator{
		Events:     make(map[string]int64, len(categories)),
		UserEvents: make(map[string]int64),
		UUIDs:      make(map[string]bool),
	}
	for _, c := range categories {
		a.Events[c] = 0
	}
	return a
}

// Fold merges one event into the accumulator. It reports false, without
// mutating anything, when the event type is not one of the pre-enumerated
// categories.
func (a *Accumulator) Fold(ev v1.MSUEvent) bool {
	if _, ok := a.Events[ev.Event]; !ok {
		return false
	}
	a.Events[ev.Event]++
	a.TotalEvents++
	a.UserEvents[ev.User]++
	a.UUIDs[ev.UUID] = true
	return true
}

// Merge folds the state of b into a. The two accumulators must have been
// built over disjoint event sets for the result to be meaningful.
func (a *Accumulator) Merge(b *Accumulator) {
	for k, n := range b.Events {
		a.Events[k] += n
	}
	a.TotalEvents += b.TotalEvents
	for u, n := range b.UserEvents {
		a.UserEvents[u] += n
	}
	for id := range b.UUIDs {
		a.UUIDs[id] = true
	}
}

// Finalize converts the working state into a committed UserSummary:
// cardinalities are taken and the per-user counts collapse into
// total_users_N_events buckets. The accumulator itself is not consumed.
func (a *Accumulator) Finalize() *v1.UserSummary {
	s := &v1.UserSummary{
		Events:           make(map[string]int64, len(a.Events)),
		TotalEvents:      a.TotalEvents,
		TotalUsers:       int64(len(a.UserEvents)),
		TotalUUIDs:       int64(len(a.UUIDs)),
		UserEventBuckets: make(map[int64]int64),
	}
	for k, n := range a.Events {
		s.Events[k] = n
	}
	for _, n := range a.UserEvents {
		s.UserEventBuckets[n]++
	}
	return s
}

// Encode serializes the accumulator state for checkpoint persistence.
func (a *Accumulator) Encode() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode accumulator: %w", err)
	}
	return data, nil
}

// Decode rehydrates an accumulator from checkpoint state.
func Decode(data []byte) (*Accumulator, error) {
	var a Accumulator
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode accumulator: %w", err)
	}
	if a.Events == nil || a.UserEvents == nil || a.UUIDs == nil {
		return nil, fmt.Errorf("decode accumulator: missing state maps")
	}
	return &a, nil
}
