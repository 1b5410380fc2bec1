// Package bootstrap decides what one tdog invocation should do before it
// touches the provider API: start a fresh full download, continue with
// incremental event application, or refuse to proceed at all. It is the Go
// counterpart of the original implementation's once/poll entrypoints
// (providers/stripe/watch.rs) and TdRun::is_apply_events_possible /
// TdMetadata::check_cli_and_stripe_versions_match
// (providers/stripe/schema_meta.rs), collapsed into one decision function
// since Go has no compile-time enum to dispatch the two modes through.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tabledog/tdog/internal/config"
	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/run"
)

// staleDatabaseThreshold mirrors the original's 28-day cutoff: the
// provider's event stream only retains 30 days of history, and the
// original leaves a 2-day margin against scheduling jitter between runs.
const staleDatabaseThreshold = 28 * 24 * time.Hour

// Mode names the operation SelectMode decided on.
type Mode int

const (
	// ModeDownload performs a full per-object download: either there is no
	// prior run, or the prior run never finished cleanly.
	ModeDownload Mode = iota
	// ModeApplyEvents continues incrementally from the last applied event.
	ModeApplyEvents
)

// ErrStaleDatabase is returned when the last completed run finished longer
// ago than the provider's event-retention window allows an incremental
// catch-up: the gap can no longer be bridged by walking the event stream,
// and the only correct fix is to drop the schema and re-download. Unlike
// the original, which panics, this is returned to the caller to exit on.
var ErrStaleDatabase = errors.New(
	"bootstrap: last run finished too long ago to catch up incrementally; drop the schema and re-download")

// ErrVersionMismatch is returned when the provider API version pinned in
// td_metadata at the first download doesn't match the version this
// invocation is configured with. The original treats this as fatal too: a
// schema built against one API version's event shapes can't safely accept
// events shaped by another.
var ErrVersionMismatch = errors.New(
	"bootstrap: configured provider api version does not match the version this database was pinned with")

// SelectMode inspects td_metadata and td_run and decides what this
// invocation should do next. Callers must check for ErrStaleDatabase and
// ErrVersionMismatch specifically and exit rather than attempt recovery:
// both name a database state no code path in this package can repair.
func SelectMode(ctx context.Context, tx *dbx.Tx, cfg *config.Config) (Mode, error) {
	meta, metaFound, err := run.GetMetadata(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("bootstrap: get metadata: %w", err)
	}

	if metaFound && meta.StripeVersion != cfg.Cmd.Source.Version {
		return 0, fmt.Errorf("%w: configured %s, pinned %s", ErrVersionMismatch, cfg.Cmd.Source.Version, meta.StripeVersion)
	}

	last, lastFound, err := run.Last(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("bootstrap: get last run: %w", err)
	}

	// No run has ever completed — either this is a fresh database, or the
	// one prior run was interrupted before it finished. Both cases are
	// safe to resolve with a full download: InsertTree/UpsertTree are
	// idempotent, so re-downloading over a half-written run just converges.
	if !lastFound || last.EndTS == nil {
		return ModeDownload, nil
	}

	if age := time.Since(*last.EndTS); age >= staleDatabaseThreshold {
		return 0, fmt.Errorf("%w: last run ended %s ago", ErrStaleDatabase, age.Round(time.Hour))
	}

	return ModeApplyEvents, nil
}
