package v1

import (
	"fmt"
	"time"
)

// MSUEvent is one Managed Software Update client interaction report.
// The log it lives in is append-only and ordered so that all events of a
// single console user are contiguous; summarization relies on that ordering.
type MSUEvent struct {
	// UUID identifies the reporting machine.
	UUID string `json:"uuid"`

	// User is the console user that interacted with the MSU client.
	// This is the grouping key for summarization: a user's events are never
	// split across a checkpoint boundary.
	User string `json:"user"`

	// Event is the interaction type, e.g. "launched" or "exit_later_clicked".
	// Valid values are enumerated by configuration before aggregation starts.
	Event string `json:"event"`

	// Mtime is when the interaction happened on the client.
	Mtime time.Time `json:"mtime"`
}

// Validate ensures the event carries every required attribute.
func (e *MSUEvent) Validate() error {
	if e.UUID == "" {
		return fmt.Errorf("uuid is required")
	}
	if e.User == "" {
		return fmt.Errorf("user is required")
	}
	if e.Event == "" {
		return fmt.Errorf("event is required")
	}
	if e.Mtime.IsZero() {
		return fmt.Errorf("mtime is required")
	}
	return nil
}
