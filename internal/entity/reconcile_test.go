package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/config"
	"github.com/tabledog/tdog/internal/dbx"
)

func openTestStore(t *testing.T) *dbx.Store {
	t.Helper()

	store, err := dbx.Open(context.Background(), config.Sink{Kind: config.SinkSQLite, DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func seedSubscriptionItems(t *testing.T, store *dbx.Store) int64 {
	t.Helper()

	var subID int64

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		if _, err := tx.Exec(context.Background(), `CREATE TABLE subscriptions (id INTEGER PRIMARY KEY AUTOINCREMENT)`); err != nil {
			return err
		}

		if _, err := tx.Exec(context.Background(), `CREATE TABLE subscription_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subscription_id INTEGER NOT NULL,
			provider_id TEXT NOT NULL
		)`); err != nil {
			return err
		}

		if _, err := tx.Exec(context.Background(), `CREATE TABLE td_write_log (
			write_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			obj_type TEXT NOT NULL,
			obj_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			write_type TEXT NOT NULL,
			insert_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
			return err
		}

		var err error
		subID, err = tx.Insert(context.Background(), `INSERT INTO subscriptions DEFAULT VALUES`)
		if err != nil {
			return err
		}

		for _, pid := range []string{"si_1", "si_2", "si_3"} {
			if _, err := tx.Insert(context.Background(),
				`INSERT INTO subscription_items (subscription_id, provider_id) VALUES (?, ?)`, subID, pid); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)

	return subID
}

func TestReconcileChildrenDeletesAbsentIDs(t *testing.T) {
	store := openTestStore(t)
	subID := seedSubscriptionItems(t, store)

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		return ReconcileChildren(context.Background(), tx, 1, "subscription_item", "subscription_items", "subscription_id", "provider_id", subID, []string{"si_1", "si_3"})
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		row := tx.QueryRow(context.Background(), `SELECT COUNT(*) FROM subscription_items WHERE subscription_id = ?`, subID)

		var count int
		if err := row.Scan(&count); err != nil {
			return err
		}

		assert.Equal(t, 2, count)

		row = tx.QueryRow(context.Background(), `SELECT COUNT(*) FROM subscription_items WHERE provider_id = ?`, "si_2")

		var gone int

		if err := row.Scan(&gone); err != nil {
			return err
		}

		assert.Equal(t, 0, gone)

		row = tx.QueryRow(context.Background(), `SELECT COUNT(*) FROM td_write_log WHERE obj_id = ? AND write_type = 'delete'`, "si_2")

		var logged int
		if err := row.Scan(&logged); err != nil {
			return err
		}

		assert.Equal(t, 1, logged)

		return nil
	})
	require.NoError(t, err)
}

func TestReconcileChildrenEmptyListDeletesAll(t *testing.T) {
	store := openTestStore(t)
	subID := seedSubscriptionItems(t, store)

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		return ReconcileChildren(context.Background(), tx, 1, "subscription_item", "subscription_items", "subscription_id", "provider_id", subID, nil)
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		row := tx.QueryRow(context.Background(), `SELECT COUNT(*) FROM subscription_items WHERE subscription_id = ?`, subID)

		var count int
		if err := row.Scan(&count); err != nil {
			return err
		}

		assert.Equal(t, 0, count)

		return nil
	})
	require.NoError(t, err)
}
