package migrations

import (
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeMigration(seq int, name, direction string) (string, *fstest.MapFile) {
	filename := fmt.Sprintf("%03d_%s.%s.sql", seq, name, direction)

	return filename, &fstest.MapFile{Data: []byte("SELECT 1;")}
}

func TestListEmbeddedMigrationsReturnsTdogSchema(t *testing.T) {
	files, err := NewEmbeddedMigration(nil).ListEmbeddedMigrations()

	require.NoError(t, err)
	assert.Equal(t, []string{
		"001_bookkeeping.down.sql",
		"001_bookkeeping.up.sql",
		"002_entities.down.sql",
		"002_entities.up.sql",
	}, files)
}

func TestValidateEmbeddedMigrationsAcceptsTheRealTree(t *testing.T) {
	assert.NoError(t, NewEmbeddedMigration(nil).ValidateEmbeddedMigrations())
}

func TestMaxSchemaVersionMatchesTheRealTree(t *testing.T) {
	assert.Equal(t, 2, NewEmbeddedMigration(nil).MaxSchemaVersion())
}

func TestValidateEmbeddedMigrationsRejectsUnpairedMigration(t *testing.T) {
	name, file := fakeMigration(1, "only_up", "up")
	fsys := fstest.MapFS{name: file}

	err := NewEmbeddedMigration(fsys).ValidateEmbeddedMigrations()

	assert.ErrorContains(t, err, "missing its down migration")
}

func TestValidateEmbeddedMigrationsRejectsSequenceGap(t *testing.T) {
	fsys := fstest.MapFS{}

	for _, seq := range []int{1, 3} {
		upName, upFile := fakeMigration(seq, "step", "up")
		downName, downFile := fakeMigration(seq, "step", "down")
		fsys[upName] = upFile
		fsys[downName] = downFile
	}

	err := NewEmbeddedMigration(fsys).ValidateEmbeddedMigrations()

	assert.ErrorContains(t, err, "gap in sequence")
}

func TestValidateEmbeddedMigrationsRejectsNonSequentialStart(t *testing.T) {
	upName, upFile := fakeMigration(2, "step", "up")
	downName, downFile := fakeMigration(2, "step", "down")
	fsys := fstest.MapFS{upName: upFile, downName: downFile}

	err := NewEmbeddedMigration(fsys).ValidateEmbeddedMigrations()

	assert.ErrorContains(t, err, "should start at 001")
}

func TestValidateEmbeddedMigrationsRejectsEmptyTree(t *testing.T) {
	err := NewEmbeddedMigration(fstest.MapFS{}).ValidateEmbeddedMigrations()

	assert.ErrorContains(t, err, "no embedded migration files found")
}

func TestGetEmbeddedMigrationContentReadsRealSQL(t *testing.T) {
	content, err := NewEmbeddedMigration(nil).GetEmbeddedMigrationContent("001_bookkeeping.up.sql")

	require.NoError(t, err)
	assert.Contains(t, string(content), "td_run")
}
