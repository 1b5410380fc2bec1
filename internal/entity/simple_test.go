package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/dbx"
)

func seedCustomersAndCharges(t *testing.T, store *dbx.Store) {
	t.Helper()

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		if _, err := tx.Exec(context.Background(), `CREATE TABLE customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL UNIQUE,
			data TEXT NOT NULL
		)`); err != nil {
			return err
		}

		_, err := tx.Exec(context.Background(), `CREATE TABLE charges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL UNIQUE,
			data TEXT NOT NULL,
			customer_id INTEGER
		)`)

		return err
	})
	require.NoError(t, err)
}

func TestSimpleInsertAndUpsert(t *testing.T) {
	store := openTestStore(t)
	seedCustomersAndCharges(t, store)

	customers := &Simple{Table: "customers", ProviderIDColumn: "provider_id", DataColumn: "data"}
	charges := &Simple{
		Table: "charges", ProviderIDColumn: "provider_id", DataColumn: "data",
		Parents: []ParentRef{{
			JSONField: "customer", Column: "customer_id",
			ParentTable: "customers", ParentProviderIDColumn: "provider_id",
		}},
	}

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		if _, err := customers.InsertTree(context.Background(), tx, 1, []byte(`{"id":"cus_1","email":"a@b.com"}`)); err != nil {
			return err
		}

		ids, err := charges.InsertTree(context.Background(), tx, 1, []byte(`{"id":"ch_1","customer":"cus_1","amount":100}`))
		if err != nil {
			return err
		}

		assert.Len(t, ids, 1)

		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		ids, err := charges.UpsertTree(context.Background(), tx, 1, []byte(`{"id":"ch_1","customer":"cus_1","amount":500}`))
		if err != nil {
			return err
		}

		assert.Len(t, ids, 1)

		row := tx.QueryRow(context.Background(), `SELECT data FROM charges WHERE provider_id = ?`, "ch_1")

		var data string
		if err := row.Scan(&data); err != nil {
			return err
		}

		assert.Contains(t, data, "500")

		row = tx.QueryRow(context.Background(), `SELECT COUNT(*) FROM charges`)

		var count int
		if err := row.Scan(&count); err != nil {
			return err
		}

		assert.Equal(t, 1, count)

		return nil
	})
	require.NoError(t, err)
}

func TestSimpleUpsertInsertsWhenAbsent(t *testing.T) {
	store := openTestStore(t)
	seedCustomersAndCharges(t, store)

	customers := &Simple{Table: "customers", ProviderIDColumn: "provider_id", DataColumn: "data"}

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		ids, err := customers.UpsertTree(context.Background(), tx, 1, []byte(`{"id":"cus_new"}`))
		if err != nil {
			return err
		}

		assert.Len(t, ids, 1)

		return nil
	})
	require.NoError(t, err)
}

func TestSimpleDeleteTree(t *testing.T) {
	store := openTestStore(t)
	seedCustomersAndCharges(t, store)

	customers := &Simple{Table: "customers", ProviderIDColumn: "provider_id", DataColumn: "data"}

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		_, err := customers.InsertTree(context.Background(), tx, 1, []byte(`{"id":"cus_del"}`))

		return err
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		ids, err := customers.DeleteTree(context.Background(), tx, 1, "cus_del")
		if err != nil {
			return err
		}

		assert.Len(t, ids, 1)

		row := tx.QueryRow(context.Background(), `SELECT COUNT(*) FROM customers WHERE provider_id = ?`, "cus_del")

		var count int
		if err := row.Scan(&count); err != nil {
			return err
		}

		assert.Equal(t, 0, count)

		return nil
	})
	require.NoError(t, err)
}
