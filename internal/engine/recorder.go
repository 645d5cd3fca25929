package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/agentmemory/internal/llm"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// RecordRequest is what an agent reports when it finishes a unit of work.
type RecordRequest struct {
	AgentType       types.AgentType        `json:"agent_type"`
	EventType       types.EventType        `json:"event_type"`
	Summary         string                 `json:"summary"`
	ContextData     map[string]interface{} `json:"context_data,omitempty"`
	KeyFindings     map[string]interface{} `json:"key_findings,omitempty"`
	RelatedEntities types.RelatedEntities  `json:"related_entities"`
	SessionID       string                 `json:"session_id,omitempty"`
	ModelUsed       string                 `json:"model_used,omitempty"`
	TokensUsed      int                    `json:"tokens_used,omitempty"`
	ConfidenceScore int                    `json:"confidence_score,omitempty"`
}

// Recorder is the single write path agents use to append memory events.
// It never modifies existing events.
type Recorder struct {
	store    storage.EventStore
	vectors  storage.VectorStore
	embedder llm.EmbeddingGenerator
	strict   bool
	logger   *slog.Logger
	now      func() time.Time
	notify   func(Notification)
}

// NewRecorder creates a recorder over store.
func NewRecorder(store storage.EventStore, cfg Config, opts ...Option) *Recorder {
	o := buildOptions(cfg, opts)
	r := &Recorder{
		store:    store,
		embedder: o.embedder,
		strict:   cfg.StrictTypes,
		logger:   o.logger,
		now:      o.now,
		notify:   o.notify,
	}
	if vs, ok := store.(storage.VectorStore); ok && vs.VectorSearchAvailable() {
		r.vectors = vs
	}
	return r
}

// Record validates req and appends exactly one event with CreatedAt set to
// now and status active. The insert commits before Record returns.
//
// Returns ErrInvalidEventSpec for malformed input and ErrStorage when the
// store fails.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (*types.MemoryEvent, error) {
	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		return nil, fmt.Errorf("%w: summary is required", ErrInvalidEventSpec)
	}
	agentType, err := r.checkAgentType(req.AgentType)
	if err != nil {
		return nil, err
	}
	eventType, err := r.checkEventType(req.EventType)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	evt := &types.MemoryEvent{
		ID:              "evt:" + uuid.NewString(),
		AgentType:       agentType,
		EventType:       eventType,
		SessionID:       req.SessionID,
		Summary:         summary,
		ContextData:     req.ContextData,
		KeyFindings:     req.KeyFindings,
		RelatedEntities: req.RelatedEntities,
		ModelUsed:       req.ModelUsed,
		TokensUsed:      req.TokensUsed,
		ConfidenceScore: req.ConfidenceScore,
		Status:          types.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := scopeFor(ctx, r.store).Insert(ctx, evt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	r.logger.Debug("engine: event recorded", "id", evt.ID, "agent_type", evt.AgentType, "event_type", evt.EventType)
	r.embed(ctx, evt)
	r.notify(Notification{
		Type:      NotifyEventRecorded,
		EventID:   evt.ID,
		AgentType: evt.AgentType,
		Summary:   evt.Summary,
		Timestamp: now,
	})
	return evt, nil
}

// RecordBestEffort records req and logs any failure instead of returning
// it. Agents use it so that their primary response never depends on memory
// being writable. Returns nil when nothing was recorded.
func (r *Recorder) RecordBestEffort(ctx context.Context, req RecordRequest) *types.MemoryEvent {
	evt, err := r.Record(ctx, req)
	if err != nil {
		r.logger.Warn("engine: failed to record memory event",
			"agent_type", req.AgentType, "event_type", req.EventType, "error", err)
		return nil
	}
	return evt
}

func (r *Recorder) checkAgentType(t types.AgentType) (types.AgentType, error) {
	if types.IsValidAgentType(t) {
		return t, nil
	}
	if r.strict {
		return "", fmt.Errorf("%w: unknown agent type %q", ErrInvalidEventSpec, t)
	}
	r.logger.Warn("engine: coercing unknown agent type", "agent_type", t, "coerced_to", types.AgentOther)
	return types.AgentOther, nil
}

func (r *Recorder) checkEventType(t types.EventType) (types.EventType, error) {
	if types.IsValidEventType(t) {
		return t, nil
	}
	if r.strict {
		return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidEventSpec, t)
	}
	r.logger.Warn("engine: coercing unknown event type", "event_type", t, "coerced_to", types.EventOther)
	return types.EventOther, nil
}

// embed stores the summary embedding. Failures only cost semantic search
// recall, so they are logged.
func (r *Recorder) embed(ctx context.Context, evt *types.MemoryEvent) {
	if r.embedder == nil || r.vectors == nil {
		return
	}
	vec, err := r.embedder.Embed(ctx, evt.Summary)
	if err != nil {
		r.logger.Warn("engine: embedding failed", "id", evt.ID, "error", err)
		return
	}
	if err := r.vectors.StoreEmbedding(ctx, evt.ID, vec, r.embedder.GetModel()); err != nil {
		r.logger.Warn("engine: failed to store embedding", "id", evt.ID, "error", err)
	}
}
