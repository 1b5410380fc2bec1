package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabledog/tdog/internal/dbx"
)

func seedInvoicesAndLines(t *testing.T, store *dbx.Store) {
	t.Helper()

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		if _, err := tx.Exec(context.Background(), `CREATE TABLE invoices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL UNIQUE,
			data TEXT NOT NULL
		)`); err != nil {
			return err
		}

		_, err := tx.Exec(context.Background(), `CREATE TABLE invoice_line_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL UNIQUE,
			invoice_id INTEGER NOT NULL,
			data TEXT NOT NULL
		)`)

		return err
	})
	require.NoError(t, err)
}

func newInvoiceLines() *UnboundedChild {
	return &UnboundedChild{
		Parent:                &Simple{Table: "invoices", ProviderIDColumn: "provider_id", DataColumn: "data"},
		ListField:             "lines",
		ChildTable:            "invoice_line_items",
		ChildColumn:           "invoice_id",
		ChildProviderIDColumn: "provider_id",
		ChildDataColumn:       "data",
	}
}

func TestUnboundedChildInsertAcceptsFirstPage(t *testing.T) {
	store := openTestStore(t)
	seedInvoicesAndLines(t, store)

	lines := newInvoiceLines()

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		ids, err := lines.InsertTree(context.Background(), tx, 1,
			[]byte(`{"id":"in_1","lines":{"has_more":false,"data":[{"id":"il_1"}]}}`))
		if err != nil {
			return err
		}

		assert.Len(t, ids, 2)

		return nil
	})
	require.NoError(t, err)
}

func TestUnboundedChildUpsertRejectsHasMore(t *testing.T) {
	store := openTestStore(t)
	seedInvoicesAndLines(t, store)

	lines := newInvoiceLines()

	err := store.WithTx(context.Background(), func(tx *dbx.Tx) error {
		_, err := lines.UpsertTree(context.Background(), tx, 1,
			[]byte(`{"id":"in_1","lines":{"has_more":true,"data":[{"id":"il_1"}]}}`))

		return err
	})
	require.ErrorIs(t, err, ErrLossyChildList)
}
