package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// StartSessionRequest opens a batch work session for an agent.
type StartSessionRequest struct {
	AgentType   types.AgentType `json:"agent_type"`
	SessionType string          `json:"session_type"`
	ModelUsed   string          `json:"model_used,omitempty"`
}

// Sessions tracks agent work sessions.
type Sessions struct {
	store storage.SessionStore
	now   func() time.Time
}

// NewSessions creates a session tracker over store.
func NewSessions(store storage.SessionStore, cfg Config, opts ...Option) *Sessions {
	o := buildOptions(cfg, opts)
	return &Sessions{store: store, now: o.now}
}

// StartSession records a new running session.
func (s *Sessions) StartSession(ctx context.Context, req StartSessionRequest) (*types.AgentSession, error) {
	if !types.IsValidAgentType(req.AgentType) {
		return nil, fmt.Errorf("%w: unknown agent type %q", ErrInvalidRequest, req.AgentType)
	}
	if strings.TrimSpace(req.SessionType) == "" {
		return nil, fmt.Errorf("%w: session_type is required", ErrInvalidRequest)
	}

	session := &types.AgentSession{
		ID:          "ses:" + uuid.NewString(),
		AgentType:   req.AgentType,
		SessionType: strings.TrimSpace(req.SessionType),
		ModelUsed:   req.ModelUsed,
		Status:      types.SessionRunning,
		StartedAt:   s.now().UTC(),
	}
	if err := s.store.StartSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return session, nil
}

// CompleteSession records the outcome of a session. A non-empty
// ErrorMessage marks it failed. Returns storage.ErrNotFound for unknown IDs.
func (s *Sessions) CompleteSession(ctx context.Context, id string, result types.SessionResult) (*types.AgentSession, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	session, err := s.store.CompleteSession(ctx, id, result)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return session, nil
}

// GetSession returns a session by ID.
func (s *Sessions) GetSession(ctx context.Context, id string) (*types.AgentSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return session, nil
}
