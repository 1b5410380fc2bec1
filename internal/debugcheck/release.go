//go:build !debugchecks

package debugcheck

import (
	"context"
	"log/slog"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/schema"
)

// Check logs a dangling enforced edge instead of aborting, spec §7.3's
// release-build behavior for the data-anomaly error kind.
func Check(ctx context.Context, tx *dbx.Tx, reg *schema.Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, edge := range enforcedEdges(reg) {
		missing, err := missingChildrenFor(ctx, tx, edge)
		if err != nil {
			logger.Error("data-anomaly check failed",
				slog.String("owner", edge.OwnerTable), slog.String("child", edge.ChildTable), slog.Any("error", err))

			continue
		}

		if len(missing) > 0 {
			logger.Warn("data anomaly: enforced edge has dangling children",
				slog.String("owner", edge.OwnerTable),
				slog.String("child", edge.ChildTable),
				slog.Int("count", len(missing)),
			)
		}
	}
}
