package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// VectorSearchAvailable reports whether the pgvector extension is usable.
func (s *EventStore) VectorSearchAvailable() bool {
	return s.pgvectorAvailable
}

// StoreEmbedding stores the summary embedding for an event, replacing any
// previous embedding.
func (s *EventStore) StoreEmbedding(ctx context.Context, eventID string, embedding []float32, model string) error {
	if eventID == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if !s.pgvectorAvailable {
		return fmt.Errorf("postgres: pgvector not available")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_embeddings (event_id, model, dimension, embedding_vec)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE SET
			model = excluded.model,
			dimension = excluded.dimension,
			embedding_vec = excluded.embedding_vec`,
		eventID, model, len(embedding), pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to store embedding: %w", err)
	}
	return nil
}

// SearchSimilar returns events ordered by cosine distance to embedding.
// Only events with a stored embedding of the same dimension are considered.
func (s *EventStore) SearchSimilar(ctx context.Context, embedding []float32, q storage.EventQuery) ([]*types.MemoryEvent, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if !s.pgvectorAvailable {
		return nil, fmt.Errorf("postgres: pgvector not available")
	}

	b := newWhereBuilder("e")
	vec := b.arg(pgvector.NewVector(embedding))
	b.add("v.dimension = " + b.arg(len(embedding)))
	b.apply(q)

	query := `SELECT ` + prefixedEventColumns("e") + `
		FROM memory_events e
		JOIN event_embeddings v ON v.event_id = e.id` + b.clause() + `
		ORDER BY v.embedding_vec <=> ` + vec + `::vector
		LIMIT ` + b.arg(q.EffectiveLimit())

	return s.queryEvents(ctx, query, b.args...)
}

func prefixedEventColumns(alias string) string {
	return alias + ".id, " + alias + ".agent_type, " + alias + ".event_type, " + alias + ".session_id, " +
		alias + ".summary, " + alias + ".context_data, " + alias + ".key_findings, " + alias + ".related_entities, " +
		alias + ".model_used, " + alias + ".tokens_used, " + alias + ".confidence_score, " +
		alias + ".status, " + alias + ".resolved_at, " + alias + ".resolution_note, " + alias + ".annotations, " +
		alias + ".created_at, " + alias + ".updated_at"
}
