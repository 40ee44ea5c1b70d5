package reports

import (
	"context"
	"fmt"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
)

// page is the grouped pager's unit of progress. Records are the events that
// are safe to count now; Resume is the cursor to persist if the run
// checkpoints after this page.
type page struct {
	Records []v1.MSUEvent

	// Withheld is how many trailing records were excluded because their
	// user's group could not be proven complete within the page. They are
	// re-fetched, in full, by the next call.
	Withheld int

	// Resume is positioned after the last counted record.
	Resume storage.Cursor

	// Done reports that the log has no further events.
	Done bool
}

// groupedPager wraps the raw paginated MSU log so that a user's events are
// never split across a resumption boundary.
//
// A short page proves the stream ended, so everything in it is safe. A full
// page may end mid-group: its trailing group is withheld and the cursor
// rewinds to the boundary just before that group began. The one exception
// is a full page consisting of a single group — withholding it would never
// make progress, so it is counted whole and the cursor advances past the
// page end. That is safe because the accumulator keys per-user state by
// user, so a group split across pages still merges exactly.
type groupedPager struct {
	source storage.MSULogSource
	cursor storage.Cursor
	limit  int
	done   bool
}

func newGroupedPager(source storage.MSULogSource, cursor storage.Cursor, limit int) *groupedPager {
	return &groupedPager{source: source, cursor: cursor, limit: limit}
}

// Next fetches and splits one page. After Done has been returned, further
// calls keep returning Done.
func (p *groupedPager) Next(ctx context.Context) (*page, error) {
	if p.done {
		return &page{Resume: p.cursor, Done: true}, nil
	}

	recs, err := p.source.FetchPage(ctx, p.cursor, p.limit)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	if len(recs) == 0 {
		p.done = true
		return &page{Resume: p.cursor, Done: true}, nil
	}

	if len(recs) < p.limit {
		// Short page: the stream ended inside it, so the trailing group is
		// complete and everything is safe.
		p.done = true
		p.cursor = recs[len(recs)-1].After
		return &page{Records: events(recs), Resume: p.cursor, Done: true}, nil
	}

	// Full page: the trailing group may continue beyond it.
	last := len(recs) - 1
	trailingUser := recs[last].Event.User
	start := last
	for start > 0 && recs[start-1].Event.User == trailingUser {
		start--
	}

	if start == 0 {
		// The whole page is one group. Count it and move on.
		p.cursor = recs[last].After
		return &page{Records: events(recs), Resume: p.cursor}, nil
	}

	p.cursor = recs[start-1].After
	return &page{
		Records:  events(recs[:start]),
		Withheld: len(recs) - start,
		Resume:   p.cursor,
	}, nil
}

func events(recs []storage.PositionedMSUEvent) []v1.MSUEvent {
	out := make([]v1.MSUEvent, len(recs))
	for i, r := range recs {
		out[i] = r.Event
	}
	return out
}
