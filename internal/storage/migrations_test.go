package storage_test

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/scrypster/agentmemory/internal/storage"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationManagerUpDown(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"m/001_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
		"m/001_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"m/002_gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id TEXT PRIMARY KEY);")},
		"m/002_gadgets.down.sql": {Data: []byte("DROP TABLE gadgets;")},
		"m/README.md":            {Data: []byte("ignored")},
		"m/xyz_bad.up.sql":       {Data: []byte("ignored")},
	}

	mgr, err := storage.NewMigrationManager(db, fsys, "m")
	require.NoError(t, err)

	_, err = mgr.Version(ctx)
	assert.ErrorIs(t, err, storage.ErrNoMigration)

	pending, err := mgr.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	n, err := mgr.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := mgr.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	n, err = mgr.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = db.ExecContext(ctx, "INSERT INTO gadgets (id) VALUES ('g1')")
	require.NoError(t, err)

	require.NoError(t, mgr.Down(ctx))
	_, err = mgr.Version(ctx)
	assert.ErrorIs(t, err, storage.ErrNoMigration)

	_, err = db.ExecContext(ctx, "SELECT 1 FROM widgets")
	assert.Error(t, err, "widgets table should be dropped")
}

func TestMigrationManagerFailedMigrationRollsBack(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"m/001_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"m/002_broken.up.sql": {Data: []byte("CREATE TABLE nope (")},
	}

	mgr, err := storage.NewMigrationManager(db, fsys, "m")
	require.NoError(t, err)

	n, err := mgr.Up(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	v, err := mgr.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v, "broken migration must not be recorded")
}

func TestMigrationManagerMissingDir(t *testing.T) {
	db := openRawDB(t)
	_, err := storage.NewMigrationManager(db, fstest.MapFS{}, "nowhere")
	assert.Error(t, err)

	_, err = storage.NewMigrationManager(nil, fstest.MapFS{}, "m")
	assert.Error(t, err)
}
