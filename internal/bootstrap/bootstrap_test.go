package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/config"
	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/run"
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

func testConfig(version string) *config.Config {
	return &config.Config{Cmd: config.Cmd{Source: config.Provider{Version: version}}}
}

func TestSelectModeDownloadsWhenNoRunExists(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)

	var mode Mode

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		var err error
		mode, err = SelectMode(context.Background(), tx, testConfig("2020-08-27"))

		return err
	})
	require.NoError(t, err)
	assert.Equal(t, ModeDownload, mode)
}

func TestSelectModeDownloadsWhenLastRunNeverFinished(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		_, err := run.Start(context.Background(), tx, run.KindDownload)

		return err
	})
	require.NoError(t, err)

	var mode Mode

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		var err error
		mode, err = SelectMode(context.Background(), tx, testConfig("2020-08-27"))

		return err
	})
	require.NoError(t, err)
	assert.Equal(t, ModeDownload, mode)
}

func TestSelectModeAppliesEventsWithinRetentionWindow(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		runID, err := run.Start(context.Background(), tx, run.KindDownload)
		if err != nil {
			return err
		}

		return run.End(context.Background(), tx, runID)
	})
	require.NoError(t, err)

	var mode Mode

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		var err error
		mode, err = SelectMode(context.Background(), tx, testConfig("2020-08-27"))

		return err
	})
	require.NoError(t, err)
	assert.Equal(t, ModeApplyEvents, mode)
}

func TestSelectModeRejectsStaleDatabase(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		runID, err := run.Start(context.Background(), tx, run.KindDownload)
		if err != nil {
			return err
		}

		if err := run.End(context.Background(), tx, runID); err != nil {
			return err
		}

		stale := time.Now().Add(-40 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
		_, err = tx.Exec(context.Background(), `UPDATE td_run SET end_ts = ? WHERE id = ?`, stale, runID)

		return err
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		_, err := SelectMode(context.Background(), tx, testConfig("2020-08-27"))

		return err
	})
	assert.ErrorIs(t, err, ErrStaleDatabase)
}

func TestSelectModeRejectsVersionMismatch(t *testing.T) {
	store := openTestStore(t)
	seedBookkeepingSchema(t, store)

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		runID, err := run.Start(context.Background(), tx, run.KindDownload)
		if err != nil {
			return err
		}

		if err := run.End(context.Background(), tx, runID); err != nil {
			return err
		}

		return run.PinMetadata(context.Background(), tx, run.Metadata{
			CLIVersion:      "1.0.0",
			StripeVersion:   "2020-08-27",
			StripeAccountID: "acct_1",
			StripeAccount:   "{}",
		})
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		_, err := SelectMode(context.Background(), tx, testConfig("2023-10-16"))

		return err
	})
	assert.ErrorIs(t, err, ErrVersionMismatch)
}
