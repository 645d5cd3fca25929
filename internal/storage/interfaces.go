// Package storage provides the persistence interfaces for the agent memory
// service.
//
// The storage layer is built from small, focused interfaces that backends
// implement independently. Stores never cache rows between calls: every
// method runs against the database and every mutation commits before it
// returns. Per-request caching lives in Scope, which callers expire
// explicitly.
package storage

import (
	"context"

	"github.com/scrypster/agentmemory/pkg/types"
)

// EventStore persists memory events.
type EventStore interface {
	// Insert appends a new event. The ID must be set and unique.
	// Insert never modifies an existing row.
	Insert(ctx context.Context, evt *types.MemoryEvent) error

	// Get retrieves an event by ID.
	// Returns ErrNotFound if the event doesn't exist.
	Get(ctx context.Context, id string) (*types.MemoryEvent, error)

	// Query returns events matching q.
	Query(ctx context.Context, q EventQuery) ([]*types.MemoryEvent, error)

	// Resolve transitions an event from active (or unknown) to resolved and
	// appends the annotation, in one transaction. The update is conditional
	// on the event not already being resolved; the returned bool reports
	// whether this call performed the transition.
	// Returns ErrNotFound if the event doesn't exist.
	Resolve(ctx context.Context, id string, annotation types.Annotation) (bool, error)

	// Annotate appends an annotation without changing the event status.
	// Returns ErrNotFound if the event doesn't exist.
	Annotate(ctx context.Context, id string, annotation types.Annotation) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// SessionStore persists agent work sessions.
type SessionStore interface {
	// StartSession inserts a new running session.
	StartSession(ctx context.Context, session *types.AgentSession) error

	// CompleteSession records the outcome of a running session.
	// Returns ErrNotFound if the session doesn't exist.
	CompleteSession(ctx context.Context, id string, result types.SessionResult) (*types.AgentSession, error)

	// GetSession retrieves a session by ID.
	// Returns ErrNotFound if the session doesn't exist.
	GetSession(ctx context.Context, id string) (*types.AgentSession, error)
}

// VectorStore is implemented by backends that support semantic search over
// event summaries.
type VectorStore interface {
	// VectorSearchAvailable reports whether vector operations can be used.
	VectorSearchAvailable() bool

	// StoreEmbedding stores the summary embedding for an event.
	StoreEmbedding(ctx context.Context, eventID string, embedding []float32, model string) error

	// SearchSimilar returns events ordered by similarity to embedding,
	// filtered by q (window, agent type, resolved status, limit).
	SearchSimilar(ctx context.Context, embedding []float32, q EventQuery) ([]*types.MemoryEvent, error)
}

// Store is the full backend surface used by the engine.
type Store interface {
	EventStore
	SessionStore
}
