package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithin_Units(t *testing.T) {
	ref := time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		age    time.Duration
		span   Span
		within bool
	}{
		{"10s within 20s", 10 * time.Second, Seconds(20), true},
		{"30s outside 20s", 30 * time.Second, Seconds(20), false},
		{"10m within 20m", 10 * time.Minute, Minutes(20), true},
		{"30m outside 20m", 30 * time.Minute, Minutes(20), false},
		{"10h within 20h", 10 * time.Hour, Hours(20), true},
		{"30h outside 20h", 30 * time.Hour, Hours(20), false},
		{"10d within 20d", 10 * 24 * time.Hour, Days(20), true},
		{"30d outside 20d", 30 * 24 * time.Hour, Days(20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := ref.Add(-tt.age)
			assert.Equal(t, tt.within, Within(ref, candidate, tt.span))
			assert.Equal(t, !tt.within, Exceeds(ref, candidate, tt.span))
		})
	}
}

// The boundary is inclusive: exactly span-old is within, one second more
// is not.
func TestWithin_Boundary(t *testing.T) {
	ref := time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)
	span := Days(1)

	assert.True(t, Within(ref, ref.Add(-24*time.Hour+time.Second), span))
	assert.True(t, Within(ref, ref.Add(-24*time.Hour), span))
	assert.False(t, Within(ref, ref.Add(-24*time.Hour-time.Second), span))
}

func TestWithin_FutureCandidate(t *testing.T) {
	ref := time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)

	// A candidate newer than the reference is trivially within any window.
	assert.True(t, Within(ref, ref.Add(time.Hour), Seconds(1)))
}
