package v1

import (
	"fmt"
	"time"
)

// InstallEvent is one package install attempt reported by a client.
type InstallEvent struct {
	// Package is the display name + version of the installed package.
	Package string `json:"package"`

	// AppleSUS marks installs that came from Apple Software Update rather
	// than the corp catalog.
	AppleSUS bool `json:"applesus"`

	// Success reports whether the install completed without error.
	Success bool `json:"success"`

	// DurationSeconds is how long the install took. Older clients do not
	// report it, hence the pointer.
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`

	// Mtime is the client-side timestamp of the install.
	Mtime time.Time `json:"mtime"`

	// ServerDatetime is when the report reached the server. The install log
	// is totally ordered by it, which makes cursor pagination stable.
	ServerDatetime time.Time `json:"server_datetime"`
}

// Validate ensures the event carries every required attribute.
func (e *InstallEvent) Validate() error {
	if e.Package == "" {
		return fmt.Errorf("package is required")
	}
	if e.Mtime.IsZero() {
		return fmt.Errorf("mtime is required")
	}
	if e.DurationSeconds != nil && *e.DurationSeconds < 0 {
		return fmt.Errorf("duration_seconds must be >= 0")
	}
	return nil
}
