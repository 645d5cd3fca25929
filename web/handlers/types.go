package handlers

import (
	"github.com/scrypster/agentmemory/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EventListResponse is the response format for endpoints that return events.
type EventListResponse struct {
	Events []*types.MemoryEvent `json:"events"`
	Count  int                  `json:"count"`
}

// ContextListResponse is the response format for GET /api/context?format=list.
type ContextListResponse struct {
	WindowHours     int                  `json:"window_hours"`
	IncludeResolved bool                 `json:"include_resolved"`
	Degraded        bool                 `json:"degraded"`
	Truncated       bool                 `json:"truncated"`
	Events          []*types.MemoryEvent `json:"events"`
	Count           int                  `json:"count"`
}

// DigestResponse is the response format for GET /api/context/digest.
type DigestResponse struct {
	Hours   int    `json:"hours"`
	Context string `json:"context"`
}

// AnnotateResponse is the response format for POST /api/annotate.
type AnnotateResponse struct {
	Annotated int `json:"annotated"`
}

// HealthResponse is the response format for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
	LLM     string `json:"llm"`
}

func newEventList(events []*types.MemoryEvent) EventListResponse {
	if events == nil {
		events = []*types.MemoryEvent{}
	}
	return EventListResponse{Events: events, Count: len(events)}
}
