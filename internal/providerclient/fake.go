package providerclient

import (
	"context"
	"encoding/json"
)

// Fake is an in-memory Client double for downloader/eventfetcher/applier
// tests: endpoints and the event stream are seeded directly rather than
// served over HTTP.
type Fake struct {
	AccountResp Account
	Pages       map[string][]Page // endpoint -> ordered pages
	Objects     map[string]json.RawMessage
	EventPages  []EventPage

	pageCursor  map[string]int
	eventCursor int
}

// NewFake returns an empty Fake ready for its exported fields to be seeded.
func NewFake() *Fake {
	return &Fake{
		Pages:      make(map[string][]Page),
		Objects:    make(map[string]json.RawMessage),
		pageCursor: make(map[string]int),
	}
}

func (f *Fake) Account(_ context.Context) (Account, error) {
	return f.AccountResp, nil
}

func (f *Fake) List(_ context.Context, endpoint, _ string, _ int) (Page, error) {
	pages := f.Pages[endpoint]
	idx := f.pageCursor[endpoint]

	if idx >= len(pages) {
		return Page{}, nil
	}

	f.pageCursor[endpoint] = idx + 1

	return pages[idx], nil
}

func (f *Fake) Get(_ context.Context, endpoint string) (json.RawMessage, error) {
	return f.Objects[endpoint], nil
}

func (f *Fake) ListEvents(_ context.Context, _ string, _ int, sinceUnix int64) (EventPage, error) {
	if f.eventCursor >= len(f.EventPages) {
		return EventPage{}, nil
	}

	page := f.EventPages[f.eventCursor]
	f.eventCursor++

	if sinceUnix <= 0 {
		return page, nil
	}

	filtered := page
	filtered.Events = nil

	for _, e := range page.Events {
		if e.Created >= sinceUnix {
			filtered.Events = append(filtered.Events, e)
		}
	}

	return filtered, nil
}

// HasEventsAfter reports whether lastEventID is not the newest seeded
// event: tests seed EventPages newest-page-first, so "after" means it
// isn't the very first event of the very first page.
func (f *Fake) HasEventsAfter(_ context.Context, lastEventID string) (bool, error) {
	if lastEventID == "" {
		return true, nil
	}

	if len(f.EventPages) == 0 || len(f.EventPages[0].Events) == 0 {
		return false, nil
	}

	return f.EventPages[0].Events[0].ID != lastEventID, nil
}

var _ Client = (*Fake)(nil)
