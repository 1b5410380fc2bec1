package run

import (
	"context"
	"fmt"
	"time"

	"github.com/tabledog/tdog/internal/dbx"
)

// RawEvent is the unmodified provider event payload, persisted before
// dispatch so a failed or skipped apply never loses the event itself —
// only td_apply_log records what was *done* with it.
type RawEvent struct {
	EventID    string
	Type       string
	APIVersion string
	CreatedTS  time.Time
	Raw        string // raw JSON
}

// PersistRawEvent inserts one td_event row. Idempotent via ON CONFLICT/
// INSERT OR IGNORE semantics per dialect, since the same event can be
// re-fetched across the backward walk eventfetcher performs on startup.
func PersistRawEvent(ctx context.Context, tx *dbx.Tx, e RawEvent) error {
	var query string

	if isSQLite(tx) {
		query = fmt.Sprintf(
			`INSERT OR IGNORE INTO td_event (event_id, type, api_version, created_ts, raw) VALUES (%s)`,
			tx.Placeholders(5),
		)
	} else {
		query = fmt.Sprintf(
			`INSERT INTO td_event (event_id, type, api_version, created_ts, raw) VALUES (%s) ON CONFLICT (event_id) DO NOTHING`,
			tx.Placeholders(5),
		)
	}

	if _, err := tx.Exec(ctx, query, e.EventID, e.Type, e.APIVersion, e.CreatedTS, e.Raw); err != nil {
		return fmt.Errorf("run: persist event %s: %w", e.EventID, err)
	}

	return nil
}
