package run

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/config"
	"github.com/tabledog/tdog/internal/dbx"
)

func openTestStore(t *testing.T) *dbx.Store {
	t.Helper()

	store, err := dbx.Open(context.Background(), config.Sink{
		Kind: config.SinkSQLite,
		DSN:  "file::memory:?cache=shared",
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func seedBookkeepingSchema(t *testing.T, store *dbx.Store) {
	t.Helper()

	ddl := []string{
		`CREATE TABLE td_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cli_version TEXT NOT NULL,
			stripe_version TEXT NOT NULL,
			stripe_account_id TEXT NOT NULL,
			stripe_account TEXT NOT NULL,
			stripe_is_test INTEGER NOT NULL,
			heartbeat_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE td_run (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			start_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			end_ts TEXT
		)`,
		`CREATE TABLE td_write_log (
			write_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			obj_type TEXT NOT NULL,
			obj_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			write_type TEXT NOT NULL,
			insert_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE td_apply_log (
			apply_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			event_id TEXT NOT NULL UNIQUE,
			action TEXT NOT NULL,
			write_ids TEXT NOT NULL,
			insert_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE td_event (
			event_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			api_version TEXT,
			created_ts TEXT NOT NULL,
			raw TEXT NOT NULL,
			received_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		for _, stmt := range ddl {
			if _, err := tx.Exec(context.Background(), stmt); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)
}

func TestStartAndLastRoundTrip(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)
	ctx := context.Background()

	var runID int64

	err := store.WithTx(ctx, func(tx *dbx.Tx) error {
		_, found, err := Last(ctx, tx)
		require.NoError(t, err)
		require.False(t, found)

		runID, err = Start(ctx, tx, KindDownload)

		return err
	})
	require.NoError(t, err)
	require.Positive(t, runID)

	err = store.WithTx(ctx, func(tx *dbx.Tx) error {
		last, found, err := Last(ctx, tx)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, runID, last.ID)
		require.Equal(t, KindDownload, last.Type)
		require.Nil(t, last.EndTS)

		return End(ctx, tx, runID)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *dbx.Tx) error {
		last, found, err := Last(ctx, tx)
		require.NoError(t, err)
		require.True(t, found)
		require.NotNil(t, last.EndTS)

		return nil
	})
	require.NoError(t, err)
}

func TestMetadataPinAndHeartbeat(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *dbx.Tx) error {
		_, found, err := GetMetadata(ctx, tx)
		require.NoError(t, err)
		require.False(t, found)

		return PinMetadata(ctx, tx, Metadata{
			CLIVersion:      "1.0.0",
			StripeVersion:   "2024-06-20",
			StripeAccountID: "acct_1",
			StripeAccount:   `{"id":"acct_1"}`,
			StripeIsTest:    true,
		})
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *dbx.Tx) error {
		m, found, err := GetMetadata(ctx, tx)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "acct_1", m.StripeAccountID)

		return Heartbeat(ctx, tx, m.ID)
	})
	require.NoError(t, err)
}
