package run

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
)

// Action names what an applier did with one event.
type Action string

const (
	ActionApplied       Action = "applied"
	ActionDeleted       Action = "deleted"
	ActionSkippedNoWrite Action = "skip.not_data_write"
)

// ApplyLogEntry is one td_apply_log row: the idempotence record an event
// id is checked against before it's ever applied twice. A unique index on
// event_id is what makes re-application of an already-seen event a no-op
// instead of a duplicate write.
type ApplyLogEntry struct {
	ApplyID  int64
	RunID    int64
	EventID  string
	Action   Action
	WriteIDs []int64
}

// RecordApply inserts one apply_log row, failing with a constraint
// violation if eventID was already recorded — the idempotence guarantee
// idempotence_test.go exercises directly.
func RecordApply(ctx context.Context, tx *dbx.Tx, runID int64, eventID string, action Action, writeIDs []int64) (int64, error) {
	encoded, err := json.Marshal(writeIDs)
	if err != nil {
		return 0, fmt.Errorf("run: encode write ids: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO td_apply_log (run_id, event_id, action, write_ids) VALUES (%s)`,
		tx.Placeholders(4),
	)

	id, err := tx.Insert(ctx, withReturning(tx, query), runID, eventID, string(action), string(encoded))
	if err != nil {
		return 0, fmt.Errorf("run: record apply %s: %w", eventID, err)
	}

	return id, nil
}

// AlreadyApplied reports whether eventID has an apply_log row already,
// the idempotence check the applier runs before doing any entity write.
func AlreadyApplied(ctx context.Context, tx *dbx.Tx, eventID string) (bool, error) {
	row := tx.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM td_apply_log WHERE event_id = %s`, tx.Placeholders(1)), eventID)

	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("run: check applied %s: %w", eventID, err)
	}

	return n > 0, nil
}

// LastAppliedEventID returns the event_id of the most recently recorded
// apply_log row, or found=false if none exists. eventfetcher walks the
// provider's event stream backward until it reaches this id.
func LastAppliedEventID(ctx context.Context, tx *dbx.Tx) (eventID string, found bool, err error) {
	row := tx.QueryRow(ctx, `SELECT event_id FROM td_apply_log ORDER BY apply_id DESC LIMIT 1`)

	if scanErr := row.Scan(&eventID); scanErr != nil {
		if isNoRows(scanErr) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("run: last applied event: %w", scanErr)
	}

	return eventID, true, nil
}
