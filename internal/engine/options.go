package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/scrypster/agentmemory/internal/llm"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// Notification types delivered to the notifier callback.
const (
	NotifyEventRecorded  = "event_recorded"
	NotifyEventResolved  = "event_resolved"
	NotifyEventAnnotated = "event_annotated"
)

// Notification describes a committed change to the memory log.
type Notification struct {
	Type      string          `json:"type"`
	EventID   string          `json:"event_id"`
	AgentType types.AgentType `json:"agent_type,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Note      string          `json:"note,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Option configures engine components.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	text     llm.TextGenerator
	embedder llm.EmbeddingGenerator
	topics   TopicExtractor
	intents  IntentClassifier
	notify   func(Notification)
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTextGenerator supplies the LLM used by the "llm" classifier and
// extractor strategies.
func WithTextGenerator(gen llm.TextGenerator) Option {
	return func(o *options) { o.text = gen }
}

// WithEmbeddingGenerator enables summary embeddings and semantic search on
// stores that implement storage.VectorStore.
func WithEmbeddingGenerator(gen llm.EmbeddingGenerator) Option {
	return func(o *options) { o.embedder = gen }
}

// WithTopicExtractor overrides the configured topic extraction strategy.
func WithTopicExtractor(x TopicExtractor) Option {
	return func(o *options) { o.topics = x }
}

// WithIntentClassifier overrides the configured intent classification strategy.
func WithIntentClassifier(c IntentClassifier) Option {
	return func(o *options) { o.intents = c }
}

// WithNotifier registers a callback invoked after each committed change.
// The callback must not block.
func WithNotifier(fn func(Notification)) Option {
	return func(o *options) { o.notify = fn }
}

func buildOptions(cfg Config, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.notify == nil {
		o.notify = func(Notification) {}
	}
	if o.topics == nil {
		o.topics = newTopicExtractor(cfg, o.text, o.logger)
	}
	if o.intents == nil {
		o.intents = newIntentClassifier(cfg, o.text, o.logger)
	}
	return o
}

// scopeFor returns the request scope carried by ctx, or a fresh scope for
// callers outside a request.
func scopeFor(ctx context.Context, store storage.EventStore) *storage.Scope {
	if scope, ok := storage.ScopeFromContext(ctx); ok {
		return scope
	}
	return storage.NewScope(store)
}
