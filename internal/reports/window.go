package reports

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rohanmalviya/simian/internal/core/window"
)

// Window is the optional day-denominated lookback a summary is computed
// over. The zero value means all-time. Each window owns an independent
// lock, cursor and summary; different windows may run concurrently.
type Window struct {
	Days int
}

// AllTime is the unbounded window.
var AllTime = Window{}

// IsZero reports whether the window is unbounded.
func (w Window) IsZero() bool { return w.Days == 0 }

// Tag is the storage key tag: "" for all-time, "1D" for one day, etc.
func (w Window) Tag() string {
	if w.IsZero() {
		return ""
	}
	return fmt.Sprintf("%dD", w.Days)
}

// Span returns the window as a lookback span. Only meaningful for
// non-zero windows.
func (w Window) Span() window.Span { return window.Days(int64(w.Days)) }

// suffix is appended to lock and cursor names so windows never share
// state: "" or "_1D".
func (w Window) suffix() string {
	if w.IsZero() {
		return ""
	}
	return "_" + w.Tag()
}

// ParseWindow parses a Tag back into a Window. The empty string is
// all-time.
func ParseWindow(tag string) (Window, error) {
	if tag == "" {
		return AllTime, nil
	}
	if !strings.HasSuffix(tag, "D") {
		return Window{}, fmt.Errorf("invalid window tag %q", tag)
	}
	days, err := strconv.Atoi(strings.TrimSuffix(tag, "D"))
	if err != nil || days <= 0 {
		return Window{}, fmt.Errorf("invalid window tag %q", tag)
	}
	return Window{Days: days}, nil
}
