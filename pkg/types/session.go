package types

import "time"

// SessionStatus is the state of a batch work session.
type SessionStatus string

// Session status constants
const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// AgentSession groups the events an agent records during one batch of work,
// such as a triage pass over the morning's inbox.
type AgentSession struct {
	ID             string                 `json:"id"`
	AgentType      AgentType              `json:"agent_type"`
	SessionType    string                 `json:"session_type"`
	ModelUsed      string                 `json:"model_used,omitempty"`
	Status         SessionStatus          `json:"status"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	ItemsProcessed int                    `json:"items_processed"`
	Summary        string                 `json:"summary,omitempty"`
	Findings       map[string]interface{} `json:"findings,omitempty"`
	TotalTokens    int                    `json:"total_tokens,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
}

// SessionResult carries the outcome reported when a session completes.
type SessionResult struct {
	ItemsProcessed int                    `json:"items_processed"`
	Summary        string                 `json:"summary"`
	Findings       map[string]interface{} `json:"findings,omitempty"`
	TotalTokens    int                    `json:"total_tokens,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
}
