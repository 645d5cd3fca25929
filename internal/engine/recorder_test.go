package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentmemory/pkg/types"
)

func TestRecord_AppendsActiveEvent(t *testing.T) {
	notes := &recordingNotifier{}
	svc, store := newTestService(t, WithNotifier(notes.notify))
	ctx := context.Background()

	evt, err := svc.Record(ctx, RecordRequest{
		AgentType:       types.AgentTriage,
		EventType:       types.EventEmailAnalyzed,
		Summary:         "  Analyzed urgent payroll email for Pedro  ",
		KeyFindings:     map[string]interface{}{"priority": "urgent"},
		RelatedEntities: types.RelatedEntities{EmailID: "msg-1"},
		ModelUsed:       "claude-haiku",
		TokensUsed:      412,
	})
	require.NoError(t, err)

	assert.Contains(t, evt.ID, "evt:")
	assert.Equal(t, "Analyzed urgent payroll email for Pedro", evt.Summary)
	assert.Equal(t, types.StatusActive, evt.Status)
	assert.True(t, evt.CreatedAt.Equal(testNow))

	stored, err := store.Get(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, evt.Summary, stored.Summary)
	assert.Equal(t, "msg-1", stored.RelatedEntities.EmailID)
	assert.Equal(t, 412, stored.TokensUsed)
	assert.Equal(t, []string{NotifyEventRecorded}, notes.kinds())
}

func TestRecord_RejectsInvalidSpec(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RecordRequest
	}{
		{"empty summary", RecordRequest{AgentType: types.AgentTriage, EventType: types.EventEmailAnalyzed, Summary: "   "}},
		{"unknown agent", RecordRequest{AgentType: "marketing", EventType: types.EventEmailAnalyzed, Summary: "x"}},
		{"unknown event", RecordRequest{AgentType: types.AgentTriage, EventType: "email_deleted", Summary: "x"}},
		{"coercion target is not an input", RecordRequest{AgentType: types.AgentOther, EventType: types.EventEmailAnalyzed, Summary: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidEventSpec)
		})
	}
}

func TestRecord_LenientModeCoercesUnknownTypes(t *testing.T) {
	store := newTestStore(t)
	cfg := DefaultConfig()
	cfg.StrictTypes = false
	rec := NewRecorder(store, cfg, WithClock(fixedClock))

	evt, err := rec.Record(context.Background(), RecordRequest{
		AgentType: "marketing",
		EventType: "campaign_sent",
		Summary:   "Sent the fall menu campaign",
	})
	require.NoError(t, err)
	assert.Equal(t, types.AgentOther, evt.AgentType)
	assert.Equal(t, types.EventOther, evt.EventType)

	_, err = rec.Record(context.Background(), RecordRequest{AgentType: "marketing", EventType: "x", Summary: ""})
	assert.ErrorIs(t, err, ErrInvalidEventSpec, "empty summary is rejected even in lenient mode")
}

func TestRecord_StorageFailure(t *testing.T) {
	svc, store := newTestService(t)
	require.NoError(t, store.Close())

	req := RecordRequest{AgentType: types.AgentTriage, EventType: types.EventEmailAnalyzed, Summary: "anything"}
	_, err := svc.Record(context.Background(), req)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrInvalidEventSpec)

	assert.Nil(t, svc.RecordBestEffort(context.Background(), req), "best effort swallows the failure")
}
