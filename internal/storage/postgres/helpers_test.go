package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the event, embedding and session
// tables. It lives in a _test file of the postgres package so it can reach
// the unexported db field while staying out of production builds.
func (s *EventStore) TruncateForTest(ctx context.Context) error {
	tables := "memory_events, agent_sessions"
	if s.pgvectorAvailable {
		tables = "event_embeddings, " + tables
	}
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE "+tables+" CASCADE"); err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
