//go:build debugchecks

package debugcheck

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/schema"
)

// Check aborts the process if any enforced foreign key has gone dangling,
// spec §7.3's debug/test-build behavior for the data-anomaly error kind.
// logger is accepted only to keep the call site identical across both
// builds; a panicking check has no use for it.
func Check(ctx context.Context, tx *dbx.Tx, reg *schema.Registry, _ *slog.Logger) {
	for _, edge := range enforcedEdges(reg) {
		missing, err := missingChildrenFor(ctx, tx, edge)
		if err != nil {
			panic(fmt.Sprintf("debugcheck: query failed for %s -> %s: %v", edge.OwnerTable, edge.ChildTable, err))
		}

		if len(missing) > 0 {
			panic(fmt.Sprintf(
				"debugcheck: data anomaly: %d row(s) in %s reference a missing %s (enforced edge)",
				len(missing), edge.ChildTable, edge.OwnerTable,
			))
		}
	}
}
