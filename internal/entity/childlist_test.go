package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/dbx"
)

func seedSubscriptionsAndItems(t *testing.T, store *dbx.Store) {
	t.Helper()

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		if _, err := tx.Exec(context.Background(), `CREATE TABLE subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL UNIQUE,
			data TEXT NOT NULL
		)`); err != nil {
			return err
		}

		_, err := tx.Exec(context.Background(), `CREATE TABLE subscription_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL UNIQUE,
			subscription_id INTEGER NOT NULL,
			data TEXT NOT NULL
		)`)

		return err
	})
	require.NoError(t, err)
}

func newSubscriptionChildList() *ChildList {
	return &ChildList{
		Parent:                &Simple{Table: "subscriptions", ProviderIDColumn: "provider_id", DataColumn: "data"},
		ArrayPath:             "items.data",
		ChildTable:            "subscription_items",
		ChildColumn:           "subscription_id",
		ChildProviderIDColumn: "provider_id",
		ChildDataColumn:       "data",
	}
}

const subWithTwoItems = `{"id":"sub_1","items":{"data":[{"id":"si_1"},{"id":"si_2"}]}}`
const subWithOneItem = `{"id":"sub_1","items":{"data":[{"id":"si_1"}]}}`

func TestChildListInsertTreeWritesParentAndChildren(t *testing.T) {
	store := openTestStore(t)
	seedSubscriptionsAndItems(t, store)

	cl := newSubscriptionChildList()

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		ids, err := cl.InsertTree(context.Background(), tx, 1, []byte(subWithTwoItems))
		if err != nil {
			return err
		}

		assert.Len(t, ids, 3)

		return nil
	})
	require.NoError(t, err)
}

func TestChildListUpsertTreeReconciles(t *testing.T) {
	store := openTestStore(t)
	seedSubscriptionsAndItems(t, store)

	cl := newSubscriptionChildList()

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		_, err := cl.InsertTree(context.Background(), tx, 1, []byte(subWithTwoItems))

		return err
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		_, err := cl.UpsertTree(context.Background(), tx, 1, []byte(subWithOneItem))

		return err
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		row := tx.QueryRow(context.Background(), `SELECT COUNT(*) FROM subscription_items`)

		var count int
		if err := row.Scan(&count); err != nil {
			return err
		}

		assert.Equal(t, 1, count)

		return nil
	})
	require.NoError(t, err)
}
