// Package types defines the core data structures for the agent memory
// coordination service: memory events recorded by the triage, daily-brief and
// operations-chat agents, their annotations, and the closed vocabularies that
// tag who produced an event and what happened.
package types

// AgentType identifies the agent that produced a memory event.
type AgentType string

// EventType describes what happened when an agent recorded a memory event.
type EventType string

// Agent type constants
const (
	// AgentTriage is the email-triage agent.
	AgentTriage AgentType = "triage"

	// AgentDailyBrief is the daily-digest generator.
	AgentDailyBrief AgentType = "daily_brief"

	// AgentOperationsChat is the conversational assistant.
	AgentOperationsChat AgentType = "operations_chat"

	// AgentDelegationAdvisor suggests who should own a task.
	AgentDelegationAdvisor AgentType = "delegation_advisor"

	// AgentSmartTriage is the batch re-triage pass.
	AgentSmartTriage AgentType = "smart_triage"

	// AgentOther is the coercion target for unknown agent types in lenient mode.
	AgentOther AgentType = "other"
)

// Event type constants
const (
	EventEmailAnalyzed       EventType = "email_analyzed"       // An email was read and classified
	EventTaskCreated         EventType = "task_created"         // A task was extracted or created
	EventDigestGenerated     EventType = "digest_generated"     // A daily digest was produced
	EventQuestionAnswered    EventType = "question_answered"    // The chat agent answered a question
	EventDelegationSuggested EventType = "delegation_suggested" // A delegation was proposed
	EventCorrectionReceived  EventType = "correction_received"  // The operator corrected an earlier finding
	EventDeadlineFound       EventType = "deadline_found"       // A deadline was identified
	EventOther               EventType = "other"                // Coercion target in lenient mode
)

// ValidAgentTypes lists the agent types accepted by the recording facade.
// AgentOther is deliberately absent: it is only ever produced by coercion.
var ValidAgentTypes = []AgentType{
	AgentTriage,
	AgentDailyBrief,
	AgentOperationsChat,
	AgentDelegationAdvisor,
	AgentSmartTriage,
}

// ValidEventTypes lists the event types accepted by the recording facade.
var ValidEventTypes = []EventType{
	EventEmailAnalyzed,
	EventTaskCreated,
	EventDigestGenerated,
	EventQuestionAnswered,
	EventDelegationSuggested,
	EventCorrectionReceived,
	EventDeadlineFound,
}

// IsValidAgentType checks if the given agent type is part of the closed vocabulary.
func IsValidAgentType(agentType AgentType) bool {
	for _, valid := range ValidAgentTypes {
		if valid == agentType {
			return true
		}
	}
	return false
}

// IsValidEventType checks if the given event type is part of the closed vocabulary.
func IsValidEventType(eventType EventType) bool {
	for _, valid := range ValidEventTypes {
		if valid == eventType {
			return true
		}
	}
	return false
}
