package applier

import (
	"time"

	"github.com/tabledog/tdog/internal/providerclient"
)

// EventSummary is a human-readable snapshot of one event, used at the
// endpoints of an applied batch to report how fresh the mirror is.
type EventSummary struct {
	ID      string
	Created time.Time
}

// Summary reports what one ApplyBatch call did, the operator-facing
// counterpart to the original implementation's ApplySummary: enough to log
// "applied N events, newest now M ago" without re-reading the apply log.
type Summary struct {
	RunID          int64
	From           *EventSummary // nil when the batch held exactly one event
	To             EventSummary
	EventTypeCount map[string]int
}

// Summarize builds a Summary from the ascending-order batch ApplyBatch was
// given. events must be non-empty.
func Summarize(runID int64, events []providerclient.Event) Summary {
	counts := make(map[string]int, len(events))
	for _, e := range events {
		counts[e.Type]++
	}

	s := Summary{
		RunID:          runID,
		To:             toEventSummary(events[len(events)-1]),
		EventTypeCount: counts,
	}

	if len(events) > 1 {
		from := toEventSummary(events[0])
		s.From = &from
	}

	return s
}

func toEventSummary(e providerclient.Event) EventSummary {
	return EventSummary{ID: e.ID, Created: time.Unix(e.Created, 0).UTC()}
}
