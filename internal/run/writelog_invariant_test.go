package run

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/dbx"
)

// TestWriteLogRecordsOneEntryPerRowTouched is the invariant every
// schema.WriteTree call must satisfy: the number of ids it returns equals
// the number of write_log rows recorded for that call, so the write log is
// always a complete, row-for-row record of what a run touched.
func TestWriteLogRecordsOneEntryPerRowTouched(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)
	ctx := context.Background()

	var runID int64

	err := store.WithTx(ctx, func(tx *dbx.Tx) error {
		var err error
		runID, err = Start(ctx, tx, KindDownload)
		require.NoError(t, err)

		// Simulate a parent + two children write tree: three rows, three
		// write_log entries.
		ids := []int64{1, 2, 3}
		tables := []string{"td_subscription", "td_subscription_item", "td_subscription_item"}

		for i, id := range ids {
			if _, err := RecordWrite(ctx, tx, runID, "subscription", "sub_1", tables[i], WriteInsert); err != nil {
				return err
			}

			_ = id
		}

		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *dbx.Tx) error {
		n, err := CountForRun(ctx, tx, runID)
		require.NoError(t, err)
		require.Equal(t, 3, n)

		return nil
	})
	require.NoError(t, err)
}

func TestWriteLogCountIsZeroForUntouchedRun(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)
	ctx := context.Background()

	var runID int64

	err := store.WithTx(ctx, func(tx *dbx.Tx) error {
		var err error
		runID, err = Start(ctx, tx, KindApplyEvents)

		return err
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *dbx.Tx) error {
		n, err := CountForRun(ctx, tx, runID)
		require.NoError(t, err)
		require.Equal(t, 0, n)

		return nil
	})
	require.NoError(t, err)
}
