package migrations

import (
	"errors"
	"fmt"
	"os"

	"github.com/tabledog/tdog/internal/config"
)

// Static errors for validation.
var (
	ErrDatabaseURLEmpty    = errors.New("DATABASE_URL cannot be empty")
	ErrMigrationTableEmpty = errors.New("MIGRATION_TABLE cannot be empty")
)

// Config configures a Runner: which Postgres database to migrate, and what
// to call the table golang-migrate tracks applied versions in.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig builds a Config from DATABASE_URL/MIGRATION_TABLE, the env
// surface cmd/tdog-migrate runs from (unlike cmd/tdog's own JSON
// configuration document, this standalone tool is meant to run with no
// config file at all, alongside a container's usual DATABASE_URL).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationTable: envOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("migrations: load config: %w", err)
	}

	return cfg, nil
}

// Validate reports the first structural problem found in the configuration.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLEmpty
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableEmpty
	}

	return nil
}

// String is safe for logging: the DSN's password, if any, is redacted
// using the same scheme the rest of this codebase redacts connection
// strings with.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}", config.MaskDSN(c.DatabaseURL), c.MigrationTable)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
