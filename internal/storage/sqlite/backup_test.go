package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentmemory/pkg/types"
)

func TestBackup_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewEventStore(filepath.Join(dir, "agentmemory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	evt := newTestEvent("evt:1", types.AgentTriage, "Analyzed urgent payroll email for Pedro", time.Now().UTC())
	require.NoError(t, store.Insert(ctx, evt))

	dest := filepath.Join(dir, "backup.db")
	require.NoError(t, store.Backup(ctx, dest))

	copied, err := NewEventStore(dest)
	require.NoError(t, err)
	t.Cleanup(func() { _ = copied.Close() })

	got, err := copied.Get(ctx, "evt:1")
	require.NoError(t, err)
	assert.Equal(t, evt.Summary, got.Summary)
}

func TestBackup_RefusesExistingTarget(t *testing.T) {
	store := newTestStore(t)
	dest := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, os.WriteFile(dest, []byte("keep me"), 0o600))

	err := store.Backup(context.Background(), dest)
	assert.Error(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestVerifyBackup_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0o600))
	assert.Error(t, VerifyBackup(context.Background(), path))
}

func TestPruneBackups_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"a.db", "b.db", "c.db", "d.db"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		mod := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	removed, err := PruneBackups(dir, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, removed)

	left, err := ListBackups(dir)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, filepath.Join(dir, "d.db"), left[0].Path)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestPruneBackups_ZeroKeepsAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), []byte("x"), 0o600))

	removed, err := PruneBackups(dir, 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.FileExists(t, filepath.Join(dir, "a.db"))
}
