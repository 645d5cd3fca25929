package types_test

import (
	"testing"

	"github.com/scrypster/agentmemory/pkg/types"
)

func TestValidStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to types.EventStatus
		want     bool
	}{
		{types.StatusUnknown, types.StatusActive, true},
		{types.StatusUnknown, types.StatusResolved, true},
		{types.StatusActive, types.StatusResolved, true},
		{types.StatusActive, types.StatusActive, false},
		{types.StatusResolved, types.StatusActive, false},
		{types.StatusResolved, types.StatusResolved, false},
		{types.StatusActive, types.StatusUnknown, false},
	}

	for _, tc := range cases {
		if got := types.IsValidStatusTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IsValidStatusTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAnnotationStatuses(t *testing.T) {
	for _, s := range []types.AnnotationStatus{
		types.AnnotationResolved, types.AnnotationIncorrect, types.AnnotationOutdated, types.AnnotationNote,
	} {
		if !types.IsValidAnnotationStatus(s) {
			t.Errorf("Expected %s to be a valid annotation status", s)
		}
	}

	if types.IsValidAnnotationStatus("archived") {
		t.Error("archived should not be a valid annotation status")
	}
}

func TestVocabularies(t *testing.T) {
	if !types.IsValidAgentType(types.AgentTriage) {
		t.Error("triage must be a valid agent type")
	}
	if types.IsValidAgentType(types.AgentOther) {
		t.Error("other is a coercion target, not an accepted input")
	}
	if types.IsValidAgentType("marketing") {
		t.Error("unknown agent type accepted")
	}
	if !types.IsValidEventType(types.EventQuestionAnswered) {
		t.Error("question_answered must be a valid event type")
	}
	if types.IsValidEventType("email_deleted") {
		t.Error("unknown event type accepted")
	}
}
