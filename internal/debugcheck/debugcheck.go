// Package debugcheck runs the data-anomaly check spec's §7.3 error
// handling design calls for: walking every enforced foreign-key edge in a
// schema.Registry and reporting any child row whose owner no longer
// exists. It's built two ways via a `debugchecks` build tag, mirroring the
// original implementation's own debug/release split around its
// assertions (panic! in debug, a log line in release): the default build
// (this file) logs and carries on; debugcheck_debug.go, built with
// `-tags debugchecks`, aborts the process instead.
package debugcheck

import (
	"context"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/schema"
)

func enforcedEdges(reg *schema.Registry) []schema.Edge {
	all := reg.AllEdges()

	enforced := make([]schema.Edge, 0, len(all))

	for _, e := range all {
		if e.Enforced {
			enforced = append(enforced, e)
		}
	}

	return enforced
}

func missingChildrenFor(ctx context.Context, tx *dbx.Tx, edge schema.Edge) ([]dbx.MissingChild, error) {
	return tx.GetMissingChildren(ctx, edge.AsChildEdge())
}
