package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tabledog/tdog/internal/config"
)

// slowInsertThreshold is the rolling-average per-insert latency above which
// a one-shot warning is logged. It exists to surface a pathologically slow
// sink early in a run rather than only at the end via overall wall time.
const slowInsertThreshold = 3 * time.Millisecond

// Tx is the single, long-running transaction every statement in one tdog
// run executes through. Callers must serialize access to it: hold it only
// across the SQL for one page of work, and release it before awaiting the
// next network call, per the ordering rules downloader and applier both
// rely on.
type Tx struct {
	mu   sync.Mutex
	sql  *sql.Tx
	kind config.SinkKind

	insertCount int64
	insertTotal time.Duration
	slowWarn    sync.Once
	logger      *slog.Logger
}

func newTx(sqlTx *sql.Tx, kind config.SinkKind) *Tx {
	return &Tx{
		sql:    sqlTx,
		kind:   kind,
		logger: slog.Default(),
	}
}

// Kind reports the dialect this transaction is running against.
func (t *Tx) Kind() config.SinkKind {
	return t.kind
}

// WithLogger attaches a run-scoped logger used for the slow-insert warning.
func (t *Tx) WithLogger(logger *slog.Logger) *Tx {
	t.logger = logger

	return t
}

// Exec runs a statement that returns no rows, holding the transaction's
// mutex for the duration of the call only.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sql.ExecContext(ctx, query, args...)
}

// Query runs a statement that returns rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sql.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sql.QueryRowContext(ctx, query, args...)
}

// Insert runs an insert statement and returns the primary key value of the
// inserted row. Postgres requires a RETURNING clause in query; sqlite uses
// sql.Result.LastInsertId instead, since modernc.org/sqlite doesn't support
// RETURNING scanning through database/sql in the same way.
func (t *Tx) Insert(ctx context.Context, query string, args ...any) (id int64, err error) {
	started := time.Now()

	t.mu.Lock()
	defer func() {
		t.mu.Unlock()
		t.recordInsertLatency(time.Since(started))
	}()

	switch t.kind {
	case config.SinkSQLite:
		res, execErr := t.sql.ExecContext(ctx, query, args...)
		if execErr != nil {
			return 0, fmt.Errorf("dbx: insert: %w", execErr)
		}

		return res.LastInsertId()
	default:
		row := t.sql.QueryRowContext(ctx, query, args...)
		if scanErr := row.Scan(&id); scanErr != nil {
			return 0, fmt.Errorf("dbx: insert: %w", scanErr)
		}

		return id, nil
	}
}

func (t *Tx) recordInsertLatency(d time.Duration) {
	t.insertCount++
	t.insertTotal += d

	avg := t.insertTotal / time.Duration(t.insertCount)
	if avg > slowInsertThreshold {
		t.slowWarn.Do(func() {
			t.logger.Warn("insert latency above threshold",
				slog.Duration("avg_latency", avg),
				slog.Duration("threshold", slowInsertThreshold),
				slog.Int64("inserts_so_far", t.insertCount))
		})
	}
}

// Update runs an update statement and returns the number of affected rows.
func (t *Tx) Update(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("dbx: update: %w", err)
	}

	return res.RowsAffected()
}

// Delete runs a delete statement and returns the number of affected rows.
func (t *Tx) Delete(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("dbx: delete: %w", err)
	}

	return res.RowsAffected()
}

// ChildEdge names one owner/child table edge to reconcile or audit. It is a
// plain data descriptor so dbx has no dependency on the schema package;
// schema and entity build ChildEdge values from their own registry.
type ChildEdge struct {
	OwnerTable    string
	OwnerIDColumn string
	ChildTable    string
	ChildColumn   string
}

// MissingChild is one row present in ChildTable that ChildEdge's owner
// side no longer lists, surfaced by GetMissingChildren for the
// data-anomaly check spec'd for debug/test builds.
type MissingChild struct {
	ParentID int64
	ChildID  int64
}

// GetMissingChildren finds child rows whose owner-id no longer exists in
// the owner table, a foreign-key soundness check the upstream provider's
// own data model can't otherwise guarantee (edges are advisory, not always
// enforced at the database level).
func (t *Tx) GetMissingChildren(ctx context.Context, edge ChildEdge) ([]MissingChild, error) {
	query := fmt.Sprintf(
		`SELECT c.%s, c.id FROM %s c LEFT JOIN %s o ON c.%s = o.id WHERE o.id IS NULL`,
		edge.OwnerIDColumn, edge.ChildTable, edge.OwnerTable, edge.OwnerIDColumn,
	)

	rows, err := t.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dbx: get missing children for %s: %w", edge.ChildTable, err)
	}
	defer rows.Close()

	var missing []MissingChild

	for rows.Next() {
		var m MissingChild
		if err := rows.Scan(&m.ParentID, &m.ChildID); err != nil {
			return nil, fmt.Errorf("dbx: scan missing child: %w", err)
		}

		missing = append(missing, m)
	}

	return missing, rows.Err()
}

// placeholdersFrom builds n placeholders starting at bind position start
// (1-based): "$start, $start+1, ..." for postgres or "?, ?, ..." for
// sqlite, since the two drivers this store supports use different
// bind-parameter syntax and postgres additionally requires each parameter
// in a single query to have a distinct number.
func (t *Tx) placeholdersFrom(start, n int) string {
	parts := make([]string, n)

	for i := range parts {
		if t.kind == config.SinkSQLite {
			parts[i] = "?"
		} else {
			parts[i] = fmt.Sprintf("$%d", start+i)
		}
	}

	return strings.Join(parts, ", ")
}

// Placeholders builds n placeholders for a single parameter list starting
// at bind position 1, e.g. an INSERT's VALUES clause.
func (t *Tx) Placeholders(n int) string {
	return t.placeholdersFrom(1, n)
}

// PlaceholdersFrom builds n placeholders for a parameter list that follows
// start-1 earlier parameters in the same query, e.g. a second IN (...)
// clause after a WHERE col = $1.
func (t *Tx) PlaceholdersFrom(start, n int) string {
	return t.placeholdersFrom(start, n)
}
