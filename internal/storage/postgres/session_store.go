package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// StartSession inserts a new session row.
func (s *EventStore) StartSession(ctx context.Context, session *types.AgentSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if session.Status == "" {
		session.Status = types.SessionRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (id, agent_type, session_type, model_used, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID,
		string(session.AgentType),
		session.SessionType,
		nullableString(session.ModelUsed),
		string(session.Status),
		session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to start session: %w", err)
	}
	return nil
}

// CompleteSession records the outcome of a session. A non-empty
// ErrorMessage marks the session as failed.
func (s *EventStore) CompleteSession(ctx context.Context, id string, result types.SessionResult) (*types.AgentSession, error) {
	findingsJSON, err := marshalJSONB(result.Findings, len(result.Findings) == 0)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to marshal findings: %w", err)
	}

	status := types.SessionCompleted
	if result.ErrorMessage != "" {
		status = types.SessionError
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_sessions
		SET status = $1, completed_at = NOW(), items_processed = $2, summary = $3,
		    findings = $4, total_tokens = $5, error_message = $6
		WHERE id = $7`,
		string(status),
		result.ItemsProcessed,
		nullableString(result.Summary),
		findingsJSON,
		result.TotalTokens,
		nullableString(result.ErrorMessage),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: session %s", storage.ErrNotFound, id)
	}

	return s.GetSession(ctx, id)
}

// GetSession retrieves a session by ID.
func (s *EventStore) GetSession(ctx context.Context, id string) (*types.AgentSession, error) {
	var session types.AgentSession
	var agentType, status string
	var modelUsed, summary, findingsJSON, errorMessage sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_type, session_type, model_used, status, started_at, completed_at,
		       items_processed, summary, findings, total_tokens, error_message
		FROM agent_sessions WHERE id = $1`, id,
	).Scan(
		&session.ID,
		&agentType,
		&session.SessionType,
		&modelUsed,
		&status,
		&session.StartedAt,
		&completedAt,
		&session.ItemsProcessed,
		&summary,
		&findingsJSON,
		&session.TotalTokens,
		&errorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get session: %w", err)
	}

	session.AgentType = types.AgentType(agentType)
	session.Status = types.SessionStatus(status)
	session.ModelUsed = modelUsed.String
	session.Summary = summary.String
	session.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	if err := unmarshalJSONB(findingsJSON, &session.Findings); err != nil {
		return nil, fmt.Errorf("postgres: failed to unmarshal findings: %w", err)
	}
	return &session, nil
}
