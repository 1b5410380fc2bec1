// Package eventfetcher walks the provider's event stream backward from
// "now" and returns the slice of events not yet applied, in ascending
// created order. It mirrors the original implementation's
// get_all_unapplied_events (providers/stripe/apply_events.rs): the
// steady-state pre-check, the backward walk bounded by the last applied
// event id, the fresh-download floor, and the version-pin gate all follow
// that function's shape, rebuilt around providerclient.Client instead of a
// generated Stripe SDK stream.
package eventfetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tabledog/tdog/internal/providerclient"
	"github.com/tabledog/tdog/internal/scheduler"
)

// eventPageSize matches the original implementation's page size for the
// event list endpoint.
const eventPageSize = 100

// freshDownloadFloor is how far before a fresh download's start_ts events
// are still considered in-scope: long enough to absorb writes that landed
// while the download was in flight, short enough not to drag in events
// from before a Stripe-Version upgrade.
const freshDownloadFloor = 120 * time.Second

// Fetcher walks one provider's event stream for one run.
type Fetcher struct {
	client        providerclient.Client
	scheduler     *scheduler.Scheduler
	pinnedVersion string
	exitOnLimit   bool
}

// New builds a Fetcher pinned to pinnedVersion: any event whose api_version
// differs aborts the poll with ErrVersionMismatch.
func New(client providerclient.Client, sched *scheduler.Scheduler, pinnedVersion string, exitOnLimit bool) *Fetcher {
	return &Fetcher{client: client, scheduler: sched, pinnedVersion: pinnedVersion, exitOnLimit: exitOnLimit}
}

// Poll returns every event more recent than lastEventID (empty meaning
// "walk everything"), in ascending created order. When sinceFreshDownload
// is non-zero, the walk never returns an event created before
// sinceFreshDownload minus freshDownloadFloor: the bound applied the first
// time events are polled after a brand-new download.
func (f *Fetcher) Poll(ctx context.Context, lastEventID string, sinceFreshDownload time.Time) ([]providerclient.Event, error) {
	if lastEventID != "" {
		has, err := f.waitAndCheck(ctx, lastEventID)
		if err != nil {
			return nil, err
		}

		if !has {
			return nil, nil
		}
	}

	var floor int64
	if !sinceFreshDownload.IsZero() {
		floor = sinceFreshDownload.Add(-freshDownloadFloor).Unix()
	}

	collected, err := f.walkBackward(ctx, lastEventID, floor)
	if err != nil {
		return nil, err
	}

	reverse(collected)

	if err := f.assertPinnedVersion(collected); err != nil {
		return nil, err
	}

	return collected, nil
}

func (f *Fetcher) waitAndCheck(ctx context.Context, lastEventID string) (bool, error) {
	ticket := f.scheduler.Enqueue(scheduler.High)
	if err := ticket.Wait(ctx); err != nil {
		return false, err
	}

	has, err := f.client.HasEventsAfter(ctx, lastEventID)
	if err != nil {
		if errors.Is(err, providerclient.ErrRateLimited) {
			if pauseErr := f.scheduler.OnRateLimited(ctx, f.exitOnLimit); pauseErr != nil {
				return false, pauseErr
			}

			return f.waitAndCheck(ctx, lastEventID)
		}

		return false, fmt.Errorf("eventfetcher: precheck: %w", err)
	}

	return has, nil
}

// walkBackward pages through the event stream from "now", stopping either
// at lastEventID (the steady-state case) or at the end of the stream (the
// first-ever poll). Pages come back newest-first; the caller reverses the
// accumulated slice once the walk is done.
func (f *Fetcher) walkBackward(ctx context.Context, lastEventID string, sinceUnix int64) ([]providerclient.Event, error) {
	var collected []providerclient.Event

	cursor := ""

	for {
		ticket := f.scheduler.Enqueue(scheduler.High)
		if err := ticket.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := f.client.ListEvents(ctx, cursor, eventPageSize, sinceUnix)
		if err != nil {
			if errors.Is(err, providerclient.ErrRateLimited) {
				if pauseErr := f.scheduler.OnRateLimited(ctx, f.exitOnLimit); pauseErr != nil {
					return nil, pauseErr
				}

				continue
			}

			return nil, fmt.Errorf("eventfetcher: list events: %w", err)
		}

		for _, e := range page.Events {
			if lastEventID != "" && e.ID == lastEventID {
				return collected, nil
			}

			collected = append(collected, e)
		}

		if !page.HasMore {
			return collected, nil
		}

		cursor = page.NextCursor
	}
}

func (f *Fetcher) assertPinnedVersion(events []providerclient.Event) error {
	for _, e := range events {
		if e.APIVersion != f.pinnedVersion {
			return fmt.Errorf("%w: event %s has version %q, pinned version is %q", providerclient.ErrVersionMismatch, e.ID, e.APIVersion, f.pinnedVersion)
		}
	}

	return nil
}

func reverse(events []providerclient.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
