// Package engine implements the agent memory coordination service: the
// recording facade agents append through, the context assembler that builds
// prompt-ready digests of recent memory, and the resolution engine that
// reconciles operator corrections.
//
// Every read path expires the request's storage.Scope before querying and
// every mutation commits in its own transaction and then expires the scope,
// so a resolution committed by one request is visible to the next read in
// any other request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scrypster/agentmemory/internal/llm"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// Service bundles the engine components over one store.
type Service struct {
	store  storage.Store
	cfg    Config
	logger *slog.Logger
	text   llm.TextGenerator

	recorder  *Recorder
	assembler *Assembler
	resolver  *Resolver
	queries   *Queries
	sessions  *Sessions
}

// New creates a Service. Use DefaultConfig() or ConfigFrom() for cfg.
func New(store storage.Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := buildOptions(cfg, opts)
	// Components share the resolved options, including the strategies.
	shared := []Option{
		WithLogger(o.logger),
		WithClock(o.now),
		WithTextGenerator(o.text),
		WithEmbeddingGenerator(o.embedder),
		WithTopicExtractor(o.topics),
		WithIntentClassifier(o.intents),
		WithNotifier(o.notify),
	}

	o.logger.Info("engine: initialized",
		"intent_classifier", fmt.Sprintf("%T", o.intents),
		"topic_extractor", fmt.Sprintf("%T", o.topics),
		"strict_types", cfg.StrictTypes)

	return &Service{
		store:     store,
		cfg:       cfg,
		logger:    o.logger,
		text:      o.text,
		recorder:  NewRecorder(store, cfg, shared...),
		assembler: NewAssembler(store, cfg, shared...),
		resolver:  NewResolver(store, cfg, shared...),
		queries:   NewQueries(store, cfg, shared...),
		sessions:  NewSessions(store, cfg, shared...),
	}, nil
}

// Store returns the underlying store.
func (s *Service) Store() storage.Store { return s.store }

// Config returns the engine configuration.
func (s *Service) Config() Config { return s.cfg }

// NewScope opens a unit of work for one request.
func (s *Service) NewScope() *storage.Scope { return storage.NewScope(s.store) }

// Ping verifies the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// LLMState reports the text provider for health checks: "disabled" without
// one, its circuit breaker state when it has one, "ok" otherwise.
func (s *Service) LLMState() string {
	if s.text == nil {
		return "disabled"
	}
	if r, ok := s.text.(llm.BreakerReporter); ok {
		return r.BreakerState()
	}
	return "ok"
}

// Record appends a memory event. See Recorder.Record.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*types.MemoryEvent, error) {
	return s.recorder.Record(ctx, req)
}

// RecordBestEffort appends a memory event, logging failures. See Recorder.RecordBestEffort.
func (s *Service) RecordBestEffort(ctx context.Context, req RecordRequest) *types.MemoryEvent {
	return s.recorder.RecordBestEffort(ctx, req)
}

// GetEvent returns one event, resolved or not, read fresh from the store.
func (s *Service) GetEvent(ctx context.Context, id string) (*types.MemoryEvent, error) {
	scope := scopeFor(ctx, s.store)
	scope.Expire()
	evt, err := scope.Get(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidInput) {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return evt, err
}

// BuildContext assembles a digest of recent memory. See Assembler.BuildContext.
func (s *Service) BuildContext(ctx context.Context, opts ContextOptions) *Digest {
	return s.assembler.BuildContext(ctx, opts)
}

// DigestContext builds the daily-digest preamble. See Assembler.DigestContext.
func (s *Service) DigestContext(ctx context.Context, hours int) string {
	return s.assembler.DigestContext(ctx, hours)
}

// Resolve resolves events named by req. See Resolver.Resolve.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	return s.resolver.Resolve(ctx, req)
}

// Annotate attaches an operator note. See Resolver.Annotate.
func (s *Service) Annotate(ctx context.Context, req AnnotateRequest) (int, error) {
	return s.resolver.Annotate(ctx, req)
}

// LooksLikeCorrection runs the correction keyword pre-filter.
func (s *Service) LooksLikeCorrection(utterance string) bool {
	return s.resolver.LooksLikeCorrection(utterance)
}

// RelatedEvents returns events referencing key. See Queries.RelatedEvents.
func (s *Service) RelatedEvents(ctx context.Context, key RelatedKey) ([]*types.MemoryEvent, error) {
	return s.queries.RelatedEvents(ctx, key)
}

// Search searches summaries. See Queries.Search.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]*types.MemoryEvent, error) {
	return s.queries.Search(ctx, req)
}

// ActiveIssues lists unresolved issues. See Queries.ActiveIssues.
func (s *Service) ActiveIssues(ctx context.Context, limit int) ([]*types.MemoryEvent, error) {
	return s.queries.ActiveIssues(ctx, limit)
}

// StartSession opens an agent work session.
func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*types.AgentSession, error) {
	return s.sessions.StartSession(ctx, req)
}

// CompleteSession closes an agent work session.
func (s *Service) CompleteSession(ctx context.Context, id string, result types.SessionResult) (*types.AgentSession, error) {
	return s.sessions.CompleteSession(ctx, id, result)
}

// GetSession returns an agent work session.
func (s *Service) GetSession(ctx context.Context, id string) (*types.AgentSession, error) {
	return s.sessions.GetSession(ctx, id)
}
