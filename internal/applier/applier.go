// Package applier dispatches one ascending-order batch of provider events
// into the schema registry's entity writers, inside a single transaction.
// It is the Go counterpart of the original implementation's
// apply_events_body and write_one_event (providers/stripe/apply_events.rs):
// the per-event steps (persist raw, skip non-writable, classify
// delete-vs-upsert, dispatch, log) follow that function's order exactly,
// rebuilt over schema.Registry's WriteTree interface instead of a
// compile-time match on a Stripe SDK enum.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/debugcheck"
	"github.com/tabledog/tdog/internal/providerclient"
	"github.com/tabledog/tdog/internal/run"
	"github.com/tabledog/tdog/internal/schema"
)

// ErrRunAdvanced is returned when another process has started a new run
// since the caller observed the last one, before this batch's events were
// fetched over HTTP. The batch is discarded unapplied: its events will be
// re-fetched (and, since td_apply_log's event_id is unique, safely
// deduplicated) the next time this process polls.
var ErrRunAdvanced = errors.New("applier: last run advanced since events were fetched")

// ApplyBatch applies one non-empty, ascending-created-order batch of events
// inside tx. Callers must have observed lastRunID (via run.Last) *before*
// fetching events over HTTP, and must run this inside a fresh transaction
// (dbx.Store.WithTx) so a returned error rolls the whole batch back.
//
// Empty batches are the caller's responsibility, not this function's: spec
// requires them to update only the metadata heartbeat without opening a
// write transaction, since an inserted-then-rolled-back td_run row still
// consumes an auto-increment value on Postgres.
func ApplyBatch(
	ctx context.Context,
	tx *dbx.Tx,
	lastRunID int64,
	events []providerclient.Event,
	reg *schema.Registry,
	logger *slog.Logger,
) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(events) == 0 {
		return Summary{}, fmt.Errorf("applier: ApplyBatch called with an empty batch")
	}

	current, found, err := run.Last(ctx, tx)
	if err != nil {
		return Summary{}, fmt.Errorf("applier: check last run: %w", err)
	}

	if !found || current.ID != lastRunID {
		return Summary{}, ErrRunAdvanced
	}

	runID, err := run.Start(ctx, tx, run.KindApplyEvents)
	if err != nil {
		return Summary{}, fmt.Errorf("applier: start run: %w", err)
	}

	for _, event := range events {
		if err := applyOne(ctx, tx, runID, event, reg, logger); err != nil {
			return Summary{}, fmt.Errorf("applier: event %s: %w", event.ID, err)
		}
	}

	debugcheck.Check(ctx, tx, reg, nil)

	if err := run.End(ctx, tx, runID); err != nil {
		return Summary{}, fmt.Errorf("applier: end run: %w", err)
	}

	return Summarize(runID, events), nil
}

func applyOne(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	event providerclient.Event,
	reg *schema.Registry,
	logger *slog.Logger,
) error {
	if err := run.PersistRawEvent(ctx, tx, run.RawEvent{
		EventID:    event.ID,
		Type:       event.Type,
		APIVersion: event.APIVersion,
		CreatedTS:  time.Unix(event.Created, 0).UTC(),
		Raw:        string(event.Data),
	}); err != nil {
		return err
	}

	objType := objectType(event.Data)

	if !reg.IsRegistered(objType) {
		_, err := run.RecordApply(ctx, tx, runID, event.ID, run.ActionSkippedNoWrite, nil)

		return err
	}

	tree, err := reg.WriteTreeFor(objType)
	if err != nil {
		return err
	}

	table, err := reg.Table(objType)
	if err != nil {
		return err
	}

	var (
		writeIDs  []int64
		action    run.Action
		writeType run.WriteType
	)

	if isDelete(event.Type, logger) {
		writeIDs, err = tree.DeleteTree(ctx, tx, runID, providerID(event.Data))
		action = run.ActionDeleted
		writeType = run.WriteDelete
	} else {
		writeIDs, err = tree.UpsertTree(ctx, tx, runID, event.Data)
		action = run.ActionApplied
		writeType = run.WriteUpdate
	}

	if err != nil {
		return err
	}

	// One write-log row for the top-level object per event, matching the
	// downloader's granularity: child rows a WriteTree touches along the
	// way (aside from ReconcileChildren's inferred deletes, which log
	// themselves) aren't logged individually.
	if _, err := run.RecordWrite(ctx, tx, runID, objType, providerID(event.Data), table.Name, writeType); err != nil {
		return err
	}

	_, err = run.RecordApply(ctx, tx, runID, event.ID, action, writeIDs)

	return err
}
