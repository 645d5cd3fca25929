package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentmemory/internal/bootstrap"
	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/pkg/types"
)

// withDataDir points the CLI at a fresh SQLite database and seeds it.
func withDataDir(t *testing.T, seed ...engine.RecordRequest) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AGENTMEMORY_DATA_PATH", dir)
	t.Setenv("AGENTMEMORY_STORAGE_ENGINE", "sqlite")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := bootstrap.OpenStore(cfg, logger)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	svc, err := bootstrap.NewService(cfg, store, logger)
	require.NoError(t, err)

	for _, req := range seed {
		_, err := svc.Record(context.Background(), req)
		require.NoError(t, err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

var pedro = engine.RecordRequest{
	AgentType:       types.AgentTriage,
	EventType:       types.EventEmailAnalyzed,
	Summary:         "Analyzed urgent payroll email for Pedro",
	RelatedEntities: types.RelatedEntities{EmailID: "em-7"},
}

var cooler = engine.RecordRequest{
	AgentType: types.AgentOperationsChat,
	EventType: types.EventQuestionAnswered,
	Summary:   "Answered question about the walk-in cooler",
}

func TestRun_Usage(t *testing.T) {
	_, err := runCLI(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "help")
	assert.NoError(t, err)
}

func TestRun_ContextAndResolveByTopic(t *testing.T) {
	withDataDir(t, pedro, cooler)

	out, err := runCLI(t, "context")
	require.NoError(t, err)
	assert.Contains(t, out, "TRIAGE Agent:")
	assert.Contains(t, out, "Pedro")

	out, err = runCLI(t, "resolve", "--topic", "Pedro", "--note", "Paid by hand")
	require.NoError(t, err)
	assert.Contains(t, out, "Resolved 1 of 1 matching events")

	out, err = runCLI(t, "context")
	require.NoError(t, err)
	assert.NotContains(t, out, "Pedro")
	assert.Contains(t, out, "walk-in cooler")

	out, err = runCLI(t, "context", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, types.ResolvedMarker)
}

func TestRun_ResolveUtteranceQuestion(t *testing.T) {
	withDataDir(t, pedro)

	out, err := runCLI(t, "resolve", "--say", "Is Pedro handled?")
	require.NoError(t, err)
	assert.NotContains(t, out, "Resolved 1")

	out, err = runCLI(t, "issues")
	require.NoError(t, err)
	assert.Contains(t, out, "Pedro")
}

func TestRun_ResolveRequiresTarget(t *testing.T) {
	withDataDir(t)
	_, err := runCLI(t, "resolve")
	assert.ErrorIs(t, err, engine.ErrInvalidRequest)
}

func TestRun_AnnotateAndRelated(t *testing.T) {
	withDataDir(t, pedro)

	out, err := runCLI(t, "annotate", "--email-id", "em-7", "--note", "Called payroll vendor")
	require.NoError(t, err)
	assert.Contains(t, out, "Annotated 1 events")

	out, err = runCLI(t, "related", "--email-id", "em-7")
	require.NoError(t, err)
	assert.Contains(t, out, "Pedro")
	assert.Contains(t, out, "active")
}

func TestRun_Search(t *testing.T) {
	withDataDir(t, pedro, cooler)

	out, err := runCLI(t, "search", "cooler")
	require.NoError(t, err)
	assert.Contains(t, out, "walk-in cooler")
	assert.NotContains(t, out, "Pedro")

	out, err = runCLI(t, "search", "forklift")
	require.NoError(t, err)
	assert.Contains(t, out, "No matches")
}

func TestRun_StatusMigrateBackup(t *testing.T) {
	dir := withDataDir(t, pedro)

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Storage:  sqlite (ok)")
	assert.Contains(t, out, "LLM:      none (disabled)")
	assert.Contains(t, out, "1 open issues")

	out, err = runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 0 migrations")

	dest := filepath.Join(dir, "snapshot.db")
	out, err = runCLI(t, "backup", "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "verified")
	assert.FileExists(t, dest)
}

func TestRun_BackupPrunesOldBackups(t *testing.T) {
	dir := withDataDir(t, pedro)
	backups := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backups, 0o700))
	old := filepath.Join(backups, "agentmemory-20250101-000000.db")
	require.NoError(t, os.WriteFile(old, []byte("stale"), 0o600))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	out, err := runCLI(t, "backup", "--keep", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned "+old)
	assert.NoFileExists(t, old)

	left, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestRun_BadFlag(t *testing.T) {
	withDataDir(t)
	_, err := runCLI(t, "issues", "--bogus")
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_ContextRejectsOversizedWindow(t *testing.T) {
	withDataDir(t, pedro)

	_, err := runCLI(t, "context", "--hours", "100000")
	assert.ErrorIs(t, err, engine.ErrInvalidRequest)

	_, err = runCLI(t, "context", "--digest", "--hours", "-3")
	assert.ErrorIs(t, err, engine.ErrInvalidRequest)
}
