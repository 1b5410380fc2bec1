package entity

import (
	"context"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
)

// MirrorField copies a field embedded in one entity's payload onto a
// column on a different table, keyed by the owner's provider id. This
// implements the provider's event-boundary field mirroring (e.g. a
// discount event also carries the owning customer's updated discount
// field): rather than re-fetch the owner, the value already present on
// the event payload is written directly.
type MirrorField struct {
	OwnerTable            string
	OwnerProviderIDColumn string
	TargetColumn          string
}

// Apply writes value onto OwnerTable's TargetColumn for the row whose
// provider id is ownerProviderID. A missing owner row is not an error: the
// owner may not have been downloaded yet, and the mirrored value will be
// correct once it is (the owner's own payload carries the same field).
func (m MirrorField) Apply(ctx context.Context, tx *dbx.Tx, ownerProviderID string, value []byte) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = %s WHERE %s = %s`,
		m.OwnerTable, m.TargetColumn, tx.PlaceholdersFrom(1, 1),
		m.OwnerProviderIDColumn, tx.PlaceholdersFrom(2, 1))

	if _, err := tx.Update(ctx, query, string(value), ownerProviderID); err != nil {
		return fmt.Errorf("entity: mirror field onto %s: %w", m.OwnerTable, err)
	}

	return nil
}
