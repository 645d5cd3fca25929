package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/agentmemory/internal/llm"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// Default result sizes for auxiliary queries.
const (
	DefaultSearchLimit = 20
	DefaultIssueLimit  = 20
)

// RelatedKey selects events by related-entity reference. Set keys are ORed.
type RelatedKey struct {
	EmailID      string `json:"email_id,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	DelegationID string `json:"delegation_id,omitempty"`
}

// SearchRequest is a free-text search over summaries.
type SearchRequest struct {
	Query      string          `json:"query"`
	AgentType  types.AgentType `json:"agent_type,omitempty"`
	ActiveOnly bool            `json:"active_only,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// Queries serves read paths other than context assembly. Every method
// expires the request scope before reading.
type Queries struct {
	store    storage.EventStore
	vectors  storage.VectorStore
	embedder llm.EmbeddingGenerator
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueries creates the auxiliary query service over store.
func NewQueries(store storage.EventStore, cfg Config, opts ...Option) *Queries {
	o := buildOptions(cfg, opts)
	q := &Queries{store: store, embedder: o.embedder, logger: o.logger, now: o.now}
	if vs, ok := store.(storage.VectorStore); ok && vs.VectorSearchAvailable() {
		q.vectors = vs
	}
	return q
}

// RelatedEvents returns every event, resolved or not, that references any
// of the given keys, oldest first.
func (q *Queries) RelatedEvents(ctx context.Context, key RelatedKey) ([]*types.MemoryEvent, error) {
	if key.EmailID == "" && key.TaskID == "" && key.DelegationID == "" {
		return nil, fmt.Errorf("%w: email_id, task_id or delegation_id is required", ErrInvalidRequest)
	}

	scope := scopeFor(ctx, q.store)
	scope.Expire()
	events, err := scope.Query(ctx, storage.EventQuery{
		EmailID:         key.EmailID,
		TaskID:          key.TaskID,
		DelegationID:    key.DelegationID,
		IncludeResolved: true,
		Ascending:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return events, nil
}

// Search finds events whose summary matches req.Query. When an embedding
// generator is configured and the store supports vectors the search is
// semantic; otherwise, or when the semantic path fails, it is a
// case-insensitive substring match.
func (q *Queries) Search(ctx context.Context, req SearchRequest) ([]*types.MemoryEvent, error) {
	text := strings.TrimSpace(req.Query)
	if text == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	scope := scopeFor(ctx, q.store)
	scope.Expire()

	filter := storage.EventQuery{
		AgentType:       req.AgentType,
		IncludeResolved: !req.ActiveOnly,
		Limit:           limit,
	}

	if q.vectors != nil && q.embedder != nil {
		events, err := q.semanticSearch(ctx, text, filter)
		if err == nil {
			return events, nil
		}
		q.logger.Warn("engine: semantic search failed, falling back to substring search", "error", err)
	}

	filter.SummaryContains = text
	events, err := scope.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return events, nil
}

func (q *Queries) semanticSearch(ctx context.Context, text string, filter storage.EventQuery) ([]*types.MemoryEvent, error) {
	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return q.vectors.SearchSimilar(ctx, vec, filter)
}

// ActiveIssues returns unresolved email and task events plus any other
// unresolved event flagged urgent, newest first.
func (q *Queries) ActiveIssues(ctx context.Context, limit int) ([]*types.MemoryEvent, error) {
	if limit <= 0 {
		limit = DefaultIssueLimit
	}

	scope := scopeFor(ctx, q.store)
	scope.Expire()

	issues, err := scope.Query(ctx, storage.EventQuery{
		EventTypes: []types.EventType{types.EventEmailAnalyzed, types.EventTaskCreated},
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	recent, err := scope.Query(ctx, storage.EventQuery{Limit: storage.MaxQueryLimit})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	seen := make(map[string]bool, len(issues))
	for _, evt := range issues {
		seen[evt.ID] = true
	}
	for _, evt := range recent {
		if !seen[evt.ID] && evt.IsUrgent() {
			seen[evt.ID] = true
			issues = append(issues, evt)
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].CreatedAt.After(issues[j].CreatedAt)
	})
	if len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}
