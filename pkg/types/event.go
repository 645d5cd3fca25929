package types

import (
	"strings"
	"time"
)

// ResolvedMarker is prepended to the rendered summary of resolved events.
// It is a display concern only; the stored summary is never rewritten.
const ResolvedMarker = "[RESOLVED]"

// MemoryEvent is one record of an agent's observation or action.
// Everything except Status, ResolvedAt, ResolutionNote and Annotations is
// immutable once the event has been recorded.
type MemoryEvent struct {
	// Identity and provenance
	ID        string    `json:"id"`         // Unique identifier (format: evt:<uuid>)
	AgentType AgentType `json:"agent_type"` // Producing agent
	EventType EventType `json:"event_type"` // What happened
	SessionID string    `json:"session_id,omitempty"`

	// Content
	Summary         string                 `json:"summary"`                // Original one-line description, never mutated
	ContextData     map[string]interface{} `json:"context_data,omitempty"` // Open-ended payload
	KeyFindings     map[string]interface{} `json:"key_findings,omitempty"` // Extracted facts, write-once
	RelatedEntities RelatedEntities        `json:"related_entities"`       // Cross-references for exact lookups

	// Model accounting
	ModelUsed       string `json:"model_used,omitempty"`
	TokensUsed      int    `json:"tokens_used,omitempty"`
	ConfidenceScore int    `json:"confidence_score,omitempty"`

	// Lifecycle
	Status         EventStatus  `json:"status"`
	CreatedAt      time.Time    `json:"created_at"` // Sole field used for windowing
	UpdatedAt      time.Time    `json:"updated_at"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
	ResolutionNote string       `json:"resolution_note,omitempty"`
	Annotations    []Annotation `json:"annotations,omitempty"` // Append-only
}

// RelatedEntities holds optional foreign references used for exact-match
// lookups by the resolution engine.
type RelatedEntities struct {
	EmailID      string   `json:"email_id,omitempty"`
	TaskID       string   `json:"task_id,omitempty"`
	DelegationID string   `json:"delegation_id,omitempty"`
	People       []string `json:"people,omitempty"`
}

// IsZero reports whether no reference is set.
func (r RelatedEntities) IsZero() bool {
	return r.EmailID == "" && r.TaskID == "" && r.DelegationID == "" && len(r.People) == 0
}

// IsResolved reports whether the event has transitioned to resolved.
func (e *MemoryEvent) IsResolved() bool {
	return e.Status == StatusResolved
}

// DisplaySummary returns the summary as it should be rendered for humans and
// prompts: resolved events carry the ResolvedMarker prefix.
func (e *MemoryEvent) DisplaySummary() string {
	if e.IsResolved() {
		return ResolvedMarker + " " + e.Summary
	}
	return e.Summary
}

// LatestAnnotation returns the most recent annotation, or nil when the event
// has never been annotated.
func (e *MemoryEvent) LatestAnnotation() *Annotation {
	if len(e.Annotations) == 0 {
		return nil
	}
	a := e.Annotations[len(e.Annotations)-1]
	return &a
}

// UrgentItems returns key_findings.urgent_items as strings.
func (e *MemoryEvent) UrgentItems() []string {
	return stringList(e.KeyFindings["urgent_items"])
}

// DeadlineCount returns the number of entries in key_findings.deadlines.
// A scalar "deadline" finding counts as one.
func (e *MemoryEvent) DeadlineCount() int {
	switch v := e.KeyFindings["deadlines"].(type) {
	case []interface{}:
		return len(v)
	case []string:
		return len(v)
	}
	if _, ok := e.KeyFindings["deadline"]; ok {
		return 1
	}
	return 0
}

// IsUrgent reports whether the findings flag the event as urgent, either
// through priority=urgent or a non-empty urgent_items list.
func (e *MemoryEvent) IsUrgent() bool {
	if p, ok := e.KeyFindings["priority"].(string); ok && strings.EqualFold(p, "urgent") {
		return true
	}
	return len(e.UrgentItems()) > 0
}

// MentionsTopic reports whether the summary references topic, ignoring case.
func (e *MemoryEvent) MentionsTopic(topic string) bool {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return false
	}
	return strings.Contains(strings.ToLower(e.Summary), strings.ToLower(topic))
}

// Clone returns a deep-enough copy for identity-map bookkeeping: slices and
// the annotation list are copied so callers cannot mutate cached state.
func (e *MemoryEvent) Clone() *MemoryEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.Annotations != nil {
		c.Annotations = append([]Annotation(nil), e.Annotations...)
	}
	if e.RelatedEntities.People != nil {
		c.RelatedEntities.People = append([]string(nil), e.RelatedEntities.People...)
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func stringList(v interface{}) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
