package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Every prompt in this package is a single-string completion (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// BreakerReporter is implemented by clients whose calls go through a
// CircuitBreaker.
type BreakerReporter interface {
	BreakerState() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
