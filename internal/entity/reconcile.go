// Package entity holds the per-entity schema.WriteTree implementations:
// the mapping from one provider object (or event payload) to row(s) across
// one or more tables. The mapping itself is mechanical (spec'd so for every
// catalog entity); what's shared across entities lives here so each
// per-entity file only has to declare its shape.
package entity

import (
	"context"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/run"
)

// ReconcileChildren deletes every row in childTable owned by parentID whose
// provider id is not in activeProviderIDs, implementing the inferred-delete
// rule for entities whose child list is a bounded, full-replace JSON array
// (e.g. a subscription's items, a customer's tax ids): the provider never
// emits an explicit delete event for a removed array element, so the only
// signal is its absence the next time the parent is seen. Every row removed
// this way is recorded in the write log under objType, since an inferred
// delete is still a write the completeness invariant must account for.
func ReconcileChildren(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	objType string,
	childTable, childColumn, providerIDColumn string,
	parentID int64,
	activeProviderIDs []string,
) error {
	stale, err := staleProviderIDs(ctx, tx, childTable, childColumn, providerIDColumn, parentID, activeProviderIDs)
	if err != nil {
		return fmt.Errorf("entity: find stale %s: %w", childTable, err)
	}

	if len(stale) == 0 {
		return nil
	}

	args := make([]any, 0, len(stale)+1)
	args = append(args, parentID)

	for _, id := range stale {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE %s = %s AND %s IN (%s)`,
		childTable, childColumn, tx.Placeholders(1), providerIDColumn, tx.PlaceholdersFrom(2, len(stale)),
	)

	if _, err := tx.Delete(ctx, query, args...); err != nil {
		return fmt.Errorf("entity: reconcile %s: %w", childTable, err)
	}

	for _, id := range stale {
		if _, err := run.RecordWrite(ctx, tx, runID, objType, id, childTable, run.WriteDelete); err != nil {
			return fmt.Errorf("entity: log reconcile delete %s: %w", childTable, err)
		}
	}

	return nil
}

// staleProviderIDs returns the provider ids of every childTable row owned
// by parentID that isn't in activeProviderIDs — the rows ReconcileChildren
// is about to delete, read first since the delete itself doesn't tell the
// caller which rows it removed.
func staleProviderIDs(
	ctx context.Context,
	tx *dbx.Tx,
	childTable, childColumn, providerIDColumn string,
	parentID int64,
	activeProviderIDs []string,
) ([]string, error) {
	var (
		query string
		args  []any
	)

	if len(activeProviderIDs) == 0 {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = %s`, providerIDColumn, childTable, childColumn, tx.Placeholders(1))
		args = []any{parentID}
	} else {
		args = make([]any, 0, len(activeProviderIDs)+1)
		args = append(args, parentID)

		for _, id := range activeProviderIDs {
			args = append(args, id)
		}

		query = fmt.Sprintf(
			`SELECT %s FROM %s WHERE %s = %s AND %s NOT IN (%s)`,
			providerIDColumn, childTable, childColumn, tx.Placeholders(1), providerIDColumn, tx.PlaceholdersFrom(2, len(activeProviderIDs)),
		)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}
