package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// toolHandler executes one tool against raw JSON arguments.
type toolHandler func(ctx context.Context, args json.RawMessage) (interface{}, error)

type tool struct {
	def     MCPTool
	handler toolHandler
}

// Server implements the MCP tools over an engine.Service.
type Server struct {
	svc     *engine.Service
	logger  *slog.Logger
	version string
	tools   map[string]tool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported during initialize.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates an MCP server backed by svc.
func NewServer(svc *engine.Service, opts ...ServerOption) *Server {
	s := &Server{
		svc:     svc,
		logger:  slog.Default(),
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tools = s.buildTools()
	return s
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response. Each request runs in its own read scope.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	ctx = storage.WithScope(ctx, s.svc.NewScope())

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result = MCPInitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
			ServerInfo:      MCPServerInfo{Name: "agentmemory", Version: s.version},
		}
	case "initialized", "notifications/initialized":
		result = map[string]interface{}{}
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: s.toolDefs()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		// Tools are also callable directly by name.
		t, ok := s.tools[req.Method]
		if !ok {
			return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
		}
		result, err = t.handler(ctx, req.Params)
	}

	if err != nil {
		s.logger.Debug("mcp request failed", "method", req.Method, "error", err)
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

// handleToolsCall dispatches a tools/call request and wraps the result in the
// MCP content envelope. Tool failures are reported in-band with IsError.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p MCPToolCallParams
	if err := unmarshalArgs(params, &p); err != nil {
		return nil, err
	}

	t, ok := s.tools[p.Name]
	if !ok {
		return toolError(fmt.Sprintf("unknown tool: %s", p.Name)), nil
	}

	result, err := t.handler(ctx, p.Arguments)
	if err != nil {
		s.logger.Debug("mcp tool failed", "tool", p.Name, "error", err)
		return toolError(err.Error()), nil
	}

	// get_context returns prompt text; hand it over verbatim.
	if r, ok := result.(*GetContextResult); ok && !r.Degraded {
		return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: r.Context}}}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(text)}}}, nil
}

func toolError(msg string) *MCPToolCallResult {
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// toolDefs returns tool definitions in a stable order.
func (s *Server) toolDefs() []MCPTool {
	defs := make([]MCPTool, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

func (s *Server) recordEvent(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args RecordEventArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.svc.Record(ctx, args)
}

func (s *Server) getContext(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args GetContextArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := engine.CheckWindowHours(args.Hours); err != nil {
		return nil, err
	}
	d := s.svc.BuildContext(ctx, engine.ContextOptions{
		WindowHours:     args.Hours,
		IncludeResolved: args.IncludeResolved,
		Flat:            args.Flat,
		AgentType:       args.AgentType,
	})
	return &GetContextResult{Context: d.Text(), Count: d.Len(), Degraded: d.Degraded}, nil
}

func (s *Server) getDigestContext(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args DigestContextArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := engine.CheckWindowHours(args.Hours); err != nil {
		return nil, err
	}
	return &GetContextResult{Context: s.svc.DigestContext(ctx, args.Hours)}, nil
}

func (s *Server) getEvent(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args GetEventArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, fmt.Errorf("%w: id is required", engine.ErrInvalidRequest)
	}
	return s.svc.GetEvent(ctx, args.ID)
}

func (s *Server) resolve(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ResolveArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.svc.Resolve(ctx, args)
}

func (s *Server) annotate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args AnnotateArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	n, err := s.svc.Annotate(ctx, args)
	if err != nil {
		return nil, err
	}
	return &AnnotateResult{Annotated: n}, nil
}

func (s *Server) search(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args SearchArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	events, err := s.svc.Search(ctx, args)
	if err != nil {
		return nil, err
	}
	return newEventList(events), nil
}

func (s *Server) relatedEvents(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args RelatedEventsArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	events, err := s.svc.RelatedEvents(ctx, args)
	if err != nil {
		return nil, err
	}
	return newEventList(events), nil
}

func (s *Server) activeIssues(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ActiveIssuesArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	events, err := s.svc.ActiveIssues(ctx, args.Limit)
	if err != nil {
		return nil, err
	}
	return newEventList(events), nil
}

func (s *Server) startSession(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args StartSessionArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.svc.StartSession(ctx, args)
}

func (s *Server) completeSession(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args CompleteSessionArgs
	if err := unmarshalArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", engine.ErrInvalidRequest)
	}
	return s.svc.CompleteSession(ctx, args.SessionID, args.SessionResult)
}

func newEventList(events []*types.MemoryEvent) *EventListResult {
	if events == nil {
		events = []*types.MemoryEvent{}
	}
	return &EventListResult{Events: events, Count: len(events)}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// unmarshalArgs decodes tool arguments; absent arguments decode to the zero
// value.
func unmarshalArgs(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: invalid arguments: %v", engine.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
}
