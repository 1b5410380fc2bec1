package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// EmbeddedMigration wraps tdog's schema migrations (go:embed'd at build
// time, so the binary never depends on a migrations/ directory existing
// next to it) with the filename/pairing/sequence validation a zero-config
// deploy needs in place of a human double-checking the migrations/
// directory before a release.
type EmbeddedMigration struct {
	fs fs.FS
}

// MigrationInfo is a migration filename's parsed sequence/name/direction.
type MigrationInfo struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

//go:embed *.sql
var embeddedMigrations embed.FS

// migrationFilenameRegex matches 001_name.up.sql / 001_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// NewEmbeddedMigration builds an EmbeddedMigration over filesystem, or the
// real go:embed'd tree when filesystem is nil (tests substitute a fake one
// to exercise the validation rules against broken fixtures).
func NewEmbeddedMigration(filesystem fs.FS) *EmbeddedMigration {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &EmbeddedMigration{fs: filesystem}
}

// GetEmbeddedMigrations returns the filesystem golang-migrate's iofs source
// driver reads from.
func (e *EmbeddedMigration) GetEmbeddedMigrations() fs.FS {
	return e.fs
}

// ListEmbeddedMigrations returns every embedded file matching the naming
// standard, in lexicographic (and therefore sequence) order. Filenames that
// don't match are silently skipped rather than erroring: ValidateEmbeddedMigrations
// is the place that judges the tree as a whole.
func (e *EmbeddedMigration) ListEmbeddedMigrations() ([]string, error) {
	entries, err := fs.ReadDir(e.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read embedded directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".sql" && migrationFilenameRegex.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// ValidateEmbeddedMigrations checks that the embedded tree is well formed:
// every file parses, every up has a matching down, and the sequence runs
// 1..N with no gaps. It's run before every state-changing Runner operation
// so a bad migration tree fails loudly before touching the database.
func (e *EmbeddedMigration) ValidateEmbeddedMigrations() error {
	files, err := e.ListEmbeddedMigrations()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("migrations: no embedded migration files found")
	}

	if err := e.validatePairing(files); err != nil {
		return err
	}

	return e.validateSequence(files)
}

// GetEmbeddedMigrationContent returns the raw SQL of one embedded file.
func (e *EmbeddedMigration) GetEmbeddedMigrationContent(filename string) ([]byte, error) {
	return fs.ReadFile(e.fs, filename)
}

// MaxSchemaVersion returns the highest migration sequence number found
// among the embedded files, or 0 if none parse. cmd/tdog reports this
// alongside the applied version for the schema-compatibility check spec'd
// at startup, and ApplySQLite uses it as the sqlite apply loop's ceiling.
func (e *EmbeddedMigration) MaxSchemaVersion() int {
	files, err := e.ListEmbeddedMigrations()
	if err != nil {
		return 0
	}

	max := 0

	for _, filename := range files {
		info, err := e.parseMigrationFilename(filename)
		if err != nil {
			continue
		}

		if info.Sequence > max {
			max = info.Sequence
		}
	}

	return max
}

func (e *EmbeddedMigration) parseMigrationFilename(filename string) (*MigrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return nil, fmt.Errorf("migrations: invalid filename %s (want 001_name.up.sql or 001_name.down.sql)", filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("migrations: invalid sequence in %s: %w", filename, err)
	}

	return &MigrationInfo{Sequence: sequence, Name: matches[2], Direction: matches[3], Filename: filename}, nil
}

// validatePairing ensures every up migration has a matching down migration
// and vice versa.
func (e *EmbeddedMigration) validatePairing(files []string) error {
	byKey := make(map[string]map[string]bool)

	for _, file := range files {
		info, err := e.parseMigrationFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if byKey[key] == nil {
			byKey[key] = make(map[string]bool)
		}

		byKey[key][info.Direction] = true
	}

	for key, directions := range byKey {
		if !directions["up"] {
			return fmt.Errorf("migrations: %s is missing its up migration", key)
		}

		if !directions["down"] {
			return fmt.Errorf("migrations: %s is missing its down migration", key)
		}
	}

	return nil
}

// validateSequence ensures the sequence numbers run 1..N with no gaps.
func (e *EmbeddedMigration) validateSequence(files []string) error {
	seen := make(map[int]bool)

	for _, file := range files {
		info, err := e.parseMigrationFilename(file)
		if err != nil {
			return err
		}

		seen[info.Sequence] = true
	}

	sequences := make([]int, 0, len(seen))
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if sequences[0] != 1 {
		return fmt.Errorf("migrations: sequence should start at 001, found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if want := sequences[i-1] + 1; sequences[i] != want {
			return fmt.Errorf("migrations: gap in sequence: expected %03d, found %03d", want, sequences[i])
		}
	}

	return nil
}
