// Package run is the bookkeeping layer every tdog invocation writes
// through: the run it's currently performing, the account-level metadata
// pinned at bootstrap, and the write/apply logs that make every insert,
// update, and delete traceable back to the event or download page that
// caused it. It mirrors the original implementation's schema_meta module,
// rebuilt as plain row structs and functions over dbx.Tx rather than an ORM.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/tabledog/tdog/internal/config"
	"github.com/tabledog/tdog/internal/dbx"
)

// Kind names the top-level operation a run performs, stored in td_run.type.
type Kind string

const (
	KindDownload    Kind = "download"
	KindApplyEvents Kind = "apply_events"
)

// Run is one row of td_run: the span of one tdog invocation from start to
// either a clean finish (EndTS set) or an interrupted one (EndTS zero).
type Run struct {
	ID      int64
	Type    Kind
	StartTS time.Time
	EndTS   *time.Time
}

func isSQLite(tx *dbx.Tx) bool {
	return tx.Kind() == config.SinkSQLite
}

func nowExpr(tx *dbx.Tx) string {
	if isSQLite(tx) {
		return "CURRENT_TIMESTAMP"
	}

	return "now()"
}

func withReturning(tx *dbx.Tx, query string) string {
	if isSQLite(tx) {
		return query
	}

	return query + " RETURNING id"
}

// Start inserts a new td_run row and returns its id. Called once at the
// top of every command, before any entity write happens, since every
// write_log row needs a run id to reference.
func Start(ctx context.Context, tx *dbx.Tx, kind Kind) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO td_run (type) VALUES (%s)`, tx.Placeholders(1))

	id, err := tx.Insert(ctx, withReturning(tx, query), string(kind))
	if err != nil {
		return 0, fmt.Errorf("run: start: %w", err)
	}

	return id, nil
}

// End stamps a run's end_ts, marking it as having finished cleanly. A run
// with a null end_ts is what bootstrap's staleness check treats as an
// interrupted prior attempt.
func End(ctx context.Context, tx *dbx.Tx, runID int64) error {
	query := fmt.Sprintf(`UPDATE td_run SET end_ts = %s WHERE id = %s`, nowExpr(tx), tx.Placeholders(1))

	if _, err := tx.Update(ctx, query, runID); err != nil {
		return fmt.Errorf("run: end %d: %w", runID, err)
	}

	return nil
}

// Last returns the most recently started run, or found=false if none
// exists yet. bootstrap.SelectMode uses this to decide between a
// first-ever download and an apply-events continuation.
func Last(ctx context.Context, tx *dbx.Tx) (r Run, found bool, err error) {
	row := tx.QueryRow(ctx, `SELECT id, type, start_ts, end_ts FROM td_run ORDER BY start_ts DESC, id DESC LIMIT 1`)

	var (
		typ      string
		startRaw any
		endRaw   any
	)

	if scanErr := row.Scan(&r.ID, &typ, &startRaw, &endRaw); scanErr != nil {
		if isNoRows(scanErr) {
			return Run{}, false, nil
		}

		return Run{}, false, fmt.Errorf("run: last: %w", scanErr)
	}

	r.Type = Kind(typ)

	if t, ok := asTime(startRaw); ok {
		r.StartTS = t
	}

	if t, ok := asTime(endRaw); ok {
		r.EndTS = &t
	}

	return r, true, nil
}
