package eventfetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/config"
	"github.com/tabledog/tdog/internal/providerclient"
	"github.com/tabledog/tdog/internal/scheduler"
)

func newRunningScheduler(t *testing.T) (*scheduler.Scheduler, context.CancelFunc) {
	t.Helper()

	sched := scheduler.New(config.Scheduler{MaxStartsPerSecond: 1000}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		_ = sched.Run(ctx)
	}()

	return sched, cancel
}

func TestPollReturnsEmptyWhenPrecheckFindsNothingNewer(t *testing.T) {
	fake := providerclient.NewFake()
	fake.EventPages = []providerclient.EventPage{
		{Events: []providerclient.Event{{ID: "evt_1", Type: "customer.created", APIVersion: "2020-08-27"}}, HasMore: false},
	}

	sched, cancel := newRunningScheduler(t)
	defer cancel()

	f := New(fake, sched, "2020-08-27", false)

	events, err := f.Poll(context.Background(), "evt_1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPollWalksBackwardAndReturnsAscendingOrder(t *testing.T) {
	fake := providerclient.NewFake()
	fake.EventPages = []providerclient.EventPage{
		{
			Events: []providerclient.Event{
				{ID: "evt_3", Created: 300, APIVersion: "2020-08-27"},
				{ID: "evt_2", Created: 200, APIVersion: "2020-08-27"},
			},
			HasMore: true,
		},
		{
			Events: []providerclient.Event{
				{ID: "evt_1", Created: 100, APIVersion: "2020-08-27"},
			},
			HasMore: false,
		},
	}

	sched, cancel := newRunningScheduler(t)
	defer cancel()

	f := New(fake, sched, "2020-08-27", false)

	events, err := f.Poll(context.Background(), "", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"evt_1", "evt_2", "evt_3"}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func TestPollStopsAtLastAppliedEventID(t *testing.T) {
	fake := providerclient.NewFake()
	fake.EventPages = []providerclient.EventPage{
		{
			Events: []providerclient.Event{
				{ID: "evt_3", Created: 300, APIVersion: "2020-08-27"},
				{ID: "evt_2", Created: 200, APIVersion: "2020-08-27"},
			},
			HasMore: false,
		},
	}

	sched, cancel := newRunningScheduler(t)
	defer cancel()

	f := New(fake, sched, "2020-08-27", false)

	events, err := f.Poll(context.Background(), "evt_2", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_3", events[0].ID)
}

func TestPollRejectsVersionMismatch(t *testing.T) {
	fake := providerclient.NewFake()
	fake.EventPages = []providerclient.EventPage{
		{Events: []providerclient.Event{{ID: "evt_1", Created: 100, APIVersion: "2019-01-01"}}, HasMore: false},
	}

	sched, cancel := newRunningScheduler(t)
	defer cancel()

	f := New(fake, sched, "2020-08-27", false)

	_, err := f.Poll(context.Background(), "", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, providerclient.ErrVersionMismatch))
}
