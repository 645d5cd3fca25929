package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/internal/storage/sqlite"
	"github.com/scrypster/agentmemory/pkg/types"
)

func TestRelatedEvents(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	insert := func(id string, age time.Duration, related types.RelatedEntities) {
		require.NoError(t, store.Insert(ctx, &types.MemoryEvent{
			ID: id, AgentType: types.AgentTriage, EventType: types.EventEmailAnalyzed,
			Summary: id, Status: types.StatusActive, RelatedEntities: related, CreatedAt: testNow.Add(-age),
		}))
	}
	insert("evt:email", 3*time.Hour, types.RelatedEntities{EmailID: "msg-1"})
	insert("evt:task", 2*time.Hour, types.RelatedEntities{TaskID: "task-1"})
	insert("evt:both", time.Hour, types.RelatedEntities{EmailID: "msg-1", TaskID: "task-9"})
	insert("evt:other", time.Hour, types.RelatedEntities{EmailID: "msg-2"})
	_, err := store.Resolve(ctx, "evt:email", types.Annotation{Note: "done"})
	require.NoError(t, err)

	events, err := svc.RelatedEvents(ctx, RelatedKey{EmailID: "msg-1", TaskID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt:email", "evt:task", "evt:both"}, eventIDs(events), "oldest first, resolved included")

	_, err = svc.RelatedEvents(ctx, RelatedKey{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSearch_Substring(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seedEvent(t, store, "evt:1", types.AgentTriage, "Payroll discrepancy for Pedro", time.Hour)
	seedEvent(t, store, "evt:2", types.AgentOperationsChat, "Answered PAYROLL schedule question", 2*time.Hour)
	seedEvent(t, store, "evt:3", types.AgentTriage, "Linen delivery delayed", 3*time.Hour)
	_, err := store.Resolve(ctx, "evt:1", types.Annotation{Note: "fixed"})
	require.NoError(t, err)

	events, err := svc.Search(ctx, SearchRequest{Query: "payroll"})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt:1", "evt:2"}, eventIDs(events))

	events, err = svc.Search(ctx, SearchRequest{Query: "payroll", ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt:2"}, eventIDs(events))

	events, err = svc.Search(ctx, SearchRequest{Query: "payroll", AgentType: types.AgentTriage, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt:1"}, eventIDs(events))

	_, err = svc.Search(ctx, SearchRequest{Query: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// vectorStore wraps the SQLite store with a scripted VectorStore.
type vectorStore struct {
	*sqlite.EventStore
	results  []*types.MemoryEvent
	err      error
	embedded map[string]int
}

func (v *vectorStore) VectorSearchAvailable() bool { return true }

func (v *vectorStore) StoreEmbedding(_ context.Context, eventID string, embedding []float32, _ string) error {
	if v.embedded == nil {
		v.embedded = make(map[string]int)
	}
	v.embedded[eventID] = len(embedding)
	return nil
}

func (v *vectorStore) SearchSimilar(_ context.Context, _ []float32, _ storage.EventQuery) ([]*types.MemoryEvent, error) {
	return v.results, v.err
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, f.err
}

func (f fakeEmbedder) GetModel() string { return "fake-embed" }

func TestSearch_SemanticWithFallback(t *testing.T) {
	vs := &vectorStore{EventStore: newTestStore(t)}
	svc, err := New(vs, DefaultConfig(), WithClock(fixedClock), WithEmbeddingGenerator(fakeEmbedder{}))
	require.NoError(t, err)
	ctx := context.Background()

	evt := record(t, svc, types.AgentTriage, "Walk-in cooler temperature alarm")
	assert.Equal(t, 3, vs.embedded[evt.ID], "recording stores the summary embedding")

	vs.results = []*types.MemoryEvent{evt}
	events, err := svc.Search(ctx, SearchRequest{Query: "refrigeration problems"})
	require.NoError(t, err)
	assert.Equal(t, []string{evt.ID}, eventIDs(events))

	vs.err = errors.New("vector index unavailable")
	events, err = svc.Search(ctx, SearchRequest{Query: "cooler"})
	require.NoError(t, err)
	assert.Equal(t, []string{evt.ID}, eventIDs(events), "falls back to substring search")
}

func TestActiveIssues(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seedEvent(t, store, "evt:email", types.AgentTriage, "Supplier price increase", 3*time.Hour)
	require.NoError(t, store.Insert(ctx, &types.MemoryEvent{
		ID: "evt:urgent-chat", AgentType: types.AgentOperationsChat, EventType: types.EventQuestionAnswered,
		Summary: "Operator asked about the gas leak", KeyFindings: map[string]interface{}{"priority": "urgent"},
		Status: types.StatusActive, CreatedAt: testNow.Add(-time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &types.MemoryEvent{
		ID: "evt:digest", AgentType: types.AgentDailyBrief, EventType: types.EventDigestGenerated,
		Summary: "Generated the morning digest", Status: types.StatusActive, CreatedAt: testNow.Add(-30 * time.Minute),
	}))
	seedEvent(t, store, "evt:done", types.AgentTriage, "Resolved email", 2*time.Hour)
	_, err := store.Resolve(ctx, "evt:done", types.Annotation{Note: "done"})
	require.NoError(t, err)

	issues, err := svc.ActiveIssues(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt:urgent-chat", "evt:email"}, eventIDs(issues))

	issues, err = svc.ActiveIssues(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt:urgent-chat"}, eventIDs(issues))
}

func TestSessions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.StartSession(ctx, StartSessionRequest{AgentType: types.AgentTriage, SessionType: "inbox_sweep", ModelUsed: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Contains(t, session.ID, "ses:")
	assert.Equal(t, types.SessionRunning, session.Status)

	evt, err := svc.Record(ctx, RecordRequest{
		AgentType: types.AgentTriage, EventType: types.EventEmailAnalyzed,
		Summary: "Analyzed vendor invoice", SessionID: session.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, session.ID, evt.SessionID)

	done, err := svc.CompleteSession(ctx, session.ID, types.SessionResult{ItemsProcessed: 12, Summary: "12 emails triaged"})
	require.NoError(t, err)
	assert.Equal(t, types.SessionCompleted, done.Status)
	assert.Equal(t, 12, done.ItemsProcessed)

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "12 emails triaged", got.Summary)

	_, err = svc.CompleteSession(ctx, "ses:missing", types.SessionResult{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = svc.StartSession(ctx, StartSessionRequest{AgentType: "marketing", SessionType: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.StartSession(ctx, StartSessionRequest{AgentType: types.AgentTriage})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNew_ValidatesInputs(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.IntentThreshold = 0
	_, err = New(newTestStore(t), cfg)
	assert.Error(t, err)
}
