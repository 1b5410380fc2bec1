// Package providerclient is the boundary between tdog's ingestion logic and
// the remote payments provider's HTTP API. The wire format and retry
// mechanics it wraps are provider-specific and deliberately thin here;
// downloader, eventfetcher, and applier depend only on the Client
// interface, so a fake implementation can drive their tests without a
// network call.
package providerclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Page is one page of a provider list endpoint's results.
type Page struct {
	Data       []json.RawMessage
	HasMore    bool
	NextCursor string
}

// Event is one entry from the provider's event stream.
type Event struct {
	ID         string
	Type       string
	Created    int64 // unix seconds
	APIVersion string
	Data       json.RawMessage
}

// EventPage is one page of the event-list endpoint, walked backward from
// "now" by eventfetcher.
type EventPage struct {
	Events     []Event
	HasMore    bool
	NextCursor string
}

// ErrRateLimited is returned by any Client method when the provider answers
// with a 429; the scheduler's OnRateLimited handles backoff and retry.
var ErrRateLimited = errors.New("providerclient: rate limited")

// ErrVersionMismatch is returned by Account when the account's pinned API
// version doesn't match what this client is configured to request.
var ErrVersionMismatch = errors.New("providerclient: api version mismatch")

// Account describes the remote account this client is scoped to.
type Account struct {
	ID         string
	APIVersion string
	IsTest     bool
	Raw        json.RawMessage
}

// Client is every outbound call the ingestion pipeline needs. Implementors
// are responsible for auth, retries, and translating the wire format; the
// scheduler gates when a call is allowed to start, not what the call does.
type Client interface {
	// Account fetches the account this API key belongs to.
	Account(ctx context.Context) (Account, error)

	// List fetches one page of endpoint, starting after cursor (empty for
	// the first page).
	List(ctx context.Context, endpoint, cursor string, limit int) (Page, error)

	// Get fetches a single object by its fully-qualified endpoint path.
	Get(ctx context.Context, endpoint string) (json.RawMessage, error)

	// ListEvents fetches one page of the event stream, walking backward
	// from the most recent event when cursor is empty. sinceUnix, when
	// non-zero, bounds the walk to events created at or after it (the
	// fresh-download 120s floor); zero means no bound.
	ListEvents(ctx context.Context, cursor string, limit int, sinceUnix int64) (EventPage, error)

	// HasEventsAfter reports whether any event exists after lastEventID in
	// stream order, without downloading a full page: the steady-state
	// pre-check that skips the backward walk entirely when nothing's new.
	HasEventsAfter(ctx context.Context, lastEventID string) (bool, error)
}

// wrapStatus turns an HTTP status code into the sentinel errors callers
// check for, or a plain wrapped error for anything else.
func wrapStatus(endpoint string, status int, body []byte) error {
	if status == 429 {
		return fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
	}

	return fmt.Errorf("providerclient: %s: status %d: %s", endpoint, status, truncate(body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	return string(b[:n]) + "..."
}
