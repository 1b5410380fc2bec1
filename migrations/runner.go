// Package migrations applies tdog's embedded schema to a sink database:
// golang-migrate against Postgres (this file), a plain sequential exec
// against sqlite (sqlite.go), since no pure-Go sqlite driver golang-migrate
// supports exists in this codebase's dependency set.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // postgres driver
)

// MigrationRunner is the surface cmd/tdog-migrate drives and cmd/tdog's
// `status` subcommand reads from for the Postgres sink.
type MigrationRunner interface {
	Up() error
	Down() error
	Status() error
	Version() error
	Drop() error
	Close() error
}

// Runner implements MigrationRunner over golang-migrate's iofs source
// driver, fed from the embedded migration tree instead of a file path, so
// the binary has no runtime dependency on a migrations/ directory existing
// alongside it.
type Runner struct {
	config            *Config
	migrate           *migrate.Migrate
	db                *sql.DB
	embeddedMigration *EmbeddedMigration
	logger            *slog.Logger
}

// migrateLogger adapts golang-migrate's Logger interface onto slog.
type migrateLogger struct{ logger *slog.Logger }

var _ migrate.Logger = (*migrateLogger)(nil)

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool { return true }

// NewMigrationRunner opens config.DatabaseURL, validates the embedded
// migration tree, and wires golang-migrate's Postgres driver against it.
func NewMigrationRunner(config *Config) (*Runner, error) {
	logger := slog.Default().With(slog.String("component", "migrations"))

	embedded := NewEmbeddedMigration(nil)
	if err := embedded.ValidateEmbeddedMigrations(); err != nil {
		return nil, fmt.Errorf("migrations: embedded tree invalid: %w", err)
	}

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: config.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	source, err := iofs.New(embedded.GetEmbeddedMigrations(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: create embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	logger.Info("migration runner ready", slog.String("config", config.String()))

	return &Runner{config: config, migrate: m, db: db, embeddedMigration: embedded, logger: logger}, nil
}

// validateBeforeWrite re-checks the embedded tree immediately before any
// state-changing operation: the tree is validated once at construction, but
// Up/Down/Drop are rare enough, and destructive enough, that re-checking
// costs nothing and catches a tree that was swapped out from under a
// long-lived Runner.
func (r *Runner) validateBeforeWrite() error {
	if err := r.embeddedMigration.ValidateEmbeddedMigrations(); err != nil {
		return fmt.Errorf("migrations: pre-operation validation failed: %w", err)
	}

	return nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	if err := r.validateBeforeWrite(); err != nil {
		return err
	}

	err := r.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no new migrations to apply")
	} else {
		r.logger.Info("migrations applied")
	}

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down() error {
	if err := r.validateBeforeWrite(); err != nil {
		return err
	}

	err := r.migrate.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: down: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no migrations to roll back")
	} else {
		r.logger.Info("last migration rolled back")
	}

	return nil
}

// Status prints the applied version, dirty state, and schema-compatibility
// report.
func (r *Runner) Status() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			r.logger.Info("no migrations applied yet")
			r.showSchemaCompatibility(0)

			return nil
		}

		return fmt.Errorf("migrations: read version: %w", err)
	}

	r.logger.Info("migration status", slog.Int64("version", ver), slog.Bool("dirty", dirty))
	r.showSchemaCompatibility(int(ver)) //nolint:gosec // version numbers fit well within int range

	return nil
}

// Version prints the currently applied schema version.
func (r *Runner) Version() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			r.logger.Info("no migrations applied")
			r.showSchemaCompatibility(0)

			return nil
		}

		return fmt.Errorf("migrations: read version: %w", err)
	}

	r.logger.Info("current version", slog.Int64("version", ver), slog.Bool("dirty", dirty))
	r.showSchemaCompatibility(int(ver)) //nolint:gosec // version numbers fit well within int range

	return nil
}

// Drop drops every table golang-migrate knows about. Destructive; callers
// gate this behind an explicit --force flag (cmd/tdog-migrate does).
func (r *Runner) Drop() error {
	if err := r.validateBeforeWrite(); err != nil {
		return err
	}

	r.logger.Warn("dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("migrations: drop: %w", err)
	}

	r.logger.Info("all tables dropped")

	return nil
}

// Close closes the migrate instance and the underlying connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		if sourceErr, dbErr := r.migrate.Close(); sourceErr != nil || dbErr != nil {
			errs = append(errs, sourceErr, dbErr)
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("migrations: close connection: %w", err))
		}
	}

	return errors.Join(errs...)
}

// showSchemaCompatibility reports how the applied version compares against
// the highest version this binary's embedded migrations support, the one
// piece of operator-facing tooling spec.md's distillation dropped but a
// complete implementation keeps.
func (r *Runner) showSchemaCompatibility(applied int) {
	max := r.embeddedMigration.MaxSchemaVersion()

	switch {
	case applied == max:
		r.logger.Info("schema up to date", slog.Int("version", applied))
	case applied < max:
		r.logger.Info("migrations available", slog.Int("applied", applied), slog.Int("supported", max), slog.Int("pending", max-applied))
	default:
		r.logger.Warn("database schema newer than this binary supports", slog.Int("applied", applied), slog.Int("supported", max))
	}
}
