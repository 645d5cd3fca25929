// Package mcp exposes the agent memory engine as Model Context Protocol
// tools over JSON-RPC 2.0, so LLM agents can record events, read the shared
// context and resolve work without going through the HTTP API.
package mcp

import (
	"encoding/json"

	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/pkg/types"
)

// JSONRPCRequest is a single JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// JSONRPCResponse is a single JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError is the error member of a response.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Tool arguments and results
// ---------------------------------------------------------------------------

// GetContextArgs contains arguments for the get_context tool.
type GetContextArgs struct {
	Hours           int             `json:"hours,omitempty"`
	IncludeResolved bool            `json:"include_resolved,omitempty"`
	Flat            bool            `json:"flat,omitempty"`
	AgentType       types.AgentType `json:"agent_type,omitempty"`
}

// GetContextResult is the digest an agent injects into its prompt.
type GetContextResult struct {
	Context  string `json:"context"`
	Count    int    `json:"count"`
	Degraded bool   `json:"degraded,omitempty"`
}

// DigestContextArgs contains arguments for the get_digest_context tool.
type DigestContextArgs struct {
	Hours int `json:"hours,omitempty"`
}

// GetEventArgs contains arguments for the get_event tool.
type GetEventArgs struct {
	ID string `json:"id"`
}

// ActiveIssuesArgs contains arguments for the active_issues tool.
type ActiveIssuesArgs struct {
	Limit int `json:"limit,omitempty"`
}

// EventListResult wraps event lists returned by tools.
type EventListResult struct {
	Events []*types.MemoryEvent `json:"events"`
	Count  int                  `json:"count"`
}

// AnnotateResult reports how many events received the note.
type AnnotateResult struct {
	Annotated int `json:"annotated"`
}

// CompleteSessionArgs contains arguments for the complete_session tool.
type CompleteSessionArgs struct {
	SessionID string `json:"session_id"`
	types.SessionResult
}

// The remaining tools take engine requests directly.
type (
	RecordEventArgs   = engine.RecordRequest
	ResolveArgs       = engine.ResolveRequest
	AnnotateArgs      = engine.AnnotateRequest
	SearchArgs        = engine.SearchRequest
	RelatedEventsArgs = engine.RelatedKey
	StartSessionArgs  = engine.StartSessionRequest
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
