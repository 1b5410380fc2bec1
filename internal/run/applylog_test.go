package run

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/dbx"
)

func TestRecordApplyRejectsDuplicateEventID(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)
	ctx := context.Background()

	var runID int64

	err := store.WithTx(ctx, func(tx *dbx.Tx) error {
		var err error
		runID, err = Start(ctx, tx, KindApplyEvents)
		require.NoError(t, err)

		applied, err := AlreadyApplied(ctx, tx, "evt_1")
		require.NoError(t, err)
		require.False(t, applied)

		_, err = RecordApply(ctx, tx, runID, "evt_1", ActionApplied, []int64{1, 2})

		return err
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *dbx.Tx) error {
		applied, err := AlreadyApplied(ctx, tx, "evt_1")
		require.NoError(t, err)
		require.True(t, applied)

		_, err = RecordApply(ctx, tx, runID, "evt_1", ActionApplied, nil)

		return err
	})
	require.Error(t, err)
}

func TestLastAppliedEventIDTracksMostRecentInsert(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *dbx.Tx) error {
		runID, err := Start(ctx, tx, KindApplyEvents)
		require.NoError(t, err)

		_, found, err := LastAppliedEventID(ctx, tx)
		require.NoError(t, err)
		require.False(t, found)

		for _, eventID := range []string{"evt_1", "evt_2", "evt_3"} {
			if _, err := RecordApply(ctx, tx, runID, eventID, ActionApplied, nil); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *dbx.Tx) error {
		last, found, err := LastAppliedEventID(ctx, tx)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "evt_3", last)

		return nil
	})
	require.NoError(t, err)
}
