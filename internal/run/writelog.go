package run

import (
	"context"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
)

// WriteType names the kind of row mutation one write_log entry records.
type WriteType string

const (
	WriteInsert WriteType = "insert"
	WriteUpdate WriteType = "update"
	WriteDelete WriteType = "delete"
)

// WriteLogEntry is one td_write_log row: one entity row touched by one
// run, traceable back to the download page or event that caused it. Every
// schema.WriteTree call's returned ids get one entry each, the invariant
// writelog_invariant_test.go checks.
type WriteLogEntry struct {
	WriteID   int64
	RunID     int64
	ObjectType string
	ObjectID  string
	TableName string
	WriteType WriteType
}

// RecordWrite inserts one write_log row and returns its id.
func RecordWrite(ctx context.Context, tx *dbx.Tx, runID int64, objectType, objectID, tableName string, writeType WriteType) (int64, error) {
	query := fmt.Sprintf(
		`INSERT INTO td_write_log (run_id, obj_type, obj_id, table_name, write_type) VALUES (%s)`,
		tx.Placeholders(5),
	)

	id, err := tx.Insert(ctx, withReturning(tx, query), runID, objectType, objectID, tableName, string(writeType))
	if err != nil {
		return 0, fmt.Errorf("run: record write: %w", err)
	}

	return id, nil
}

// CountForRun returns how many write_log rows exist for runID, used by
// tests to assert every WriteTree id produced exactly one entry.
func CountForRun(ctx context.Context, tx *dbx.Tx, runID int64) (int, error) {
	row := tx.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM td_write_log WHERE run_id = %s`, tx.Placeholders(1)), runID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("run: count writes for run %d: %w", runID, err)
	}

	return n, nil
}
