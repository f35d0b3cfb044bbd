package migrations

import (
	"path/filepath"
	"testing"

	"ms-order-worker/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeRequiresMigrationsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	r := NewRunner(nil, MigrateOptions{MigrationsDir: dir}, logger.NewNop())

	err := r.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations directory does not exist")

	assert.Error(t, r.MigrateUp())
	_, _, _, err = r.Version()
	assert.Error(t, err)
}

func TestCloseWithoutInitialize(t *testing.T) {
	r := NewRunner(nil, DefaultOptions(), logger.NewNop())
	assert.NoError(t, r.Close())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, "./migrations", opts.MigrationsDir)
	assert.Equal(t, "db_orders", opts.SchemaName)
}
