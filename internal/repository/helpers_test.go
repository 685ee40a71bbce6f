package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"medprep/internal/database"
	"medprep/migrations"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(migrations.FS))
	return db
}
