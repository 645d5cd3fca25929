package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentmemory/internal/storage/sqlite"
	"github.com/scrypster/agentmemory/pkg/types"
)

// testNow is the fixed clock used by engine tests.
var testNow = time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestStore(t *testing.T) *sqlite.EventStore {
	t.Helper()
	store, err := sqlite.NewEventStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestService(t *testing.T, opts ...Option) (*Service, *sqlite.EventStore) {
	t.Helper()
	store := newTestStore(t)
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	svc, err := New(store, DefaultConfig(), opts...)
	require.NoError(t, err)
	return svc, store
}

// seedEvent inserts an active event created age before testNow.
func seedEvent(t *testing.T, store *sqlite.EventStore, id string, agent types.AgentType, summary string, age time.Duration) *types.MemoryEvent {
	t.Helper()
	evt := &types.MemoryEvent{
		ID:        id,
		AgentType: agent,
		EventType: types.EventEmailAnalyzed,
		Summary:   summary,
		Status:    types.StatusActive,
		CreatedAt: testNow.Add(-age),
	}
	require.NoError(t, store.Insert(context.Background(), evt))
	return evt
}

func record(t *testing.T, svc *Service, agent types.AgentType, summary string) *types.MemoryEvent {
	t.Helper()
	evt, err := svc.Record(context.Background(), RecordRequest{
		AgentType: agent,
		EventType: types.EventEmailAnalyzed,
		Summary:   summary,
	})
	require.NoError(t, err)
	return evt
}

func eventIDs(events []*types.MemoryEvent) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

// fakeGenerator is a scripted llm.TextGenerator.
type fakeGenerator struct {
	response string
	err      error
	block    bool

	calls   atomic.Int32
	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.response, f.err
}

func (f *fakeGenerator) GetModel() string { return "fake" }

// recordingNotifier collects notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (n *recordingNotifier) notify(msg Notification) {
	n.mu.Lock()
	n.items = append(n.items, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.items))
	for i, msg := range n.items {
		out[i] = msg.Type
	}
	return out
}
