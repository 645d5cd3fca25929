package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentmemory/internal/api/mcp"
)

func TestStdioTransport_Serve(t *testing.T) {
	srv, _ := newTestServer(t)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`garbage`,
	}, "\n") + "\n"
	var out bytes.Buffer
	transport := mcp.NewStdioTransport(srv, strings.NewReader(in), &out, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, transport.Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, "notifications and blank lines get no response")

	var first, second, third mcp.JSONRPCResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))
	assert.EqualValues(t, 1, first.ID)
	assert.EqualValues(t, 2, second.ID)
	require.NotNil(t, third.Error)
	assert.Equal(t, mcp.ErrCodeParseError, third.Error.Code)
}

func TestStdioTransport_ContextCancelled(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := mcp.NewStdioTransport(srv, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), io.Discard, nil)
	assert.ErrorIs(t, transport.Serve(ctx), context.Canceled)
}
