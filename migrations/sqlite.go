package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ApplySQLite applies every embedded up migration directly against a sqlite
// database, in ascending sequence order. golang-migrate's postgres driver
// doesn't cover this dialect, and modernc.org/sqlite's single-file,
// single-process model makes golang-migrate's locking machinery unnecessary
// here: a plain version table and sequential exec is enough.
func ApplySQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("migrations: create schema_migrations: %w", err)
	}

	applied, err := currentSQLiteVersion(ctx, db)
	if err != nil {
		return err
	}

	embedded := NewEmbeddedMigration(nil)

	if err := embedded.ValidateEmbeddedMigrations(); err != nil {
		return fmt.Errorf("migrations: validate: %w", err)
	}

	files, err := embedded.ListEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("migrations: list: %w", err)
	}

	pending := make(map[int]string)

	for _, filename := range files {
		info, err := embedded.parseMigrationFilename(filename)
		if err != nil {
			continue
		}

		if info.Direction != "up" || info.Sequence <= applied {
			continue
		}

		pending[info.Sequence] = filename
	}

	max := embedded.MaxSchemaVersion()

	for seq := applied + 1; seq <= max; seq++ {
		filename, ok := pending[seq]
		if !ok {
			continue
		}

		content, err := embedded.GetEmbeddedMigrationContent(filename)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", filename, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrations: begin %s: %w", filename, err)
		}

		if _, err := tx.ExecContext(ctx, translateToSQLite(string(content))); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("migrations: apply %s: %w", filename, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, seq); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("migrations: record %s: %w", filename, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrations: commit %s: %w", filename, err)
		}
	}

	return nil
}

// sqliteRewrites maps the handful of postgres-only tokens the embedded
// migrations use onto their sqlite equivalent, so one migration source
// serves both dialects instead of maintaining two trees. Order matters:
// BIGSERIAL must be rewritten before a plain SERIAL rule would apply.
var sqliteRewrites = []struct {
	old, new string
}{
	{"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY"},
	{"TIMESTAMPTZ", "TEXT"},
	{"JSONB", "TEXT"},
	{"TEXT[]", "TEXT"},
	{"now()", "CURRENT_TIMESTAMP"},
}

func translateToSQLite(stmt string) string {
	for _, r := range sqliteRewrites {
		stmt = strings.ReplaceAll(stmt, r.old, r.new)
	}

	return stmt
}

func currentSQLiteVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64

	row := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`)
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("migrations: read current version: %w", err)
	}

	return int(version.Int64), nil
}
