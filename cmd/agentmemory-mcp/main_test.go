package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ServesUntilStdinCloses(t *testing.T) {
	t.Setenv("AGENTMEMORY_DATA_PATH", t.TempDir())
	t.Setenv("AGENTMEMORY_STORAGE_ENGINE", "sqlite")
	t.Setenv("AGENTMEMORY_LOG_FORMAT", "json")

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"record_event","arguments":{"agent_type":"triage","event_type":"email_analyzed","summary":"Vendor invoice overdue"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_context"}}`,
	}, "\n") + "\n"

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), strings.NewReader(in), &stdout, &stderr))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), "stdout must carry only JSON-RPC frames: %s", line)
	}
	assert.Contains(t, lines[2], "Vendor invoice overdue")
	assert.Contains(t, stderr.String(), "MCP server ready")
}

func TestRun_BadStorageEngine(t *testing.T) {
	t.Setenv("AGENTMEMORY_STORAGE_ENGINE", "mysql")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), strings.NewReader(""), &stdout, &stderr)
	assert.Error(t, err)
	assert.Empty(t, stdout.String())
}
