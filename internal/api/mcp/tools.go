package mcp

import (
	"github.com/scrypster/agentmemory/pkg/types"
)

type schema = map[string]interface{}

func str(desc string) schema     { return schema{"type": "string", "description": desc} }
func integer(desc string) schema { return schema{"type": "integer", "description": desc} }
func boolean(desc string) schema { return schema{"type": "boolean", "description": desc} }

func enum[T ~string](desc string, values []T) schema {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return schema{"type": "string", "enum": out, "description": desc}
}

func object(required []string, props schema) schema {
	s := schema{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var keyProps = schema{
	"email_id":      str("Email the events reference"),
	"task_id":       str("Task the events reference"),
	"delegation_id": str("Delegation the events reference"),
}

func withKeys(extra schema) schema {
	props := schema{}
	for k, v := range keyProps {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// buildTools returns the tool registry.
func (s *Server) buildTools() map[string]tool {
	list := []tool{
		{
			def: MCPTool{
				Name: "record_event",
				Description: "Record what you just did so other agents see it. Events start active; " +
					"record email and task findings with their email_id or task_id so they can be resolved later.",
				InputSchema: object([]string{"agent_type", "event_type", "summary"}, schema{
					"agent_type":   enum("Which agent is recording", types.ValidAgentTypes),
					"event_type":   enum("What kind of work was done", types.ValidEventTypes),
					"summary":      str("One-line human-readable summary"),
					"context_data": schema{"type": "object", "description": "Structured details"},
					"key_findings": schema{"type": "object", "description": "Findings other agents should act on; priority=urgent or urgent_items surfaces it as an issue"},
					"related_entities": object(nil, withKeys(schema{
						"people": schema{"type": "array", "items": schema{"type": "string"}, "description": "People mentioned"},
					})),
					"session_id":       str("Agent session this event belongs to"),
					"model_used":       str("Model that produced the work"),
					"tokens_used":      integer("Tokens spent"),
					"confidence_score": integer("Confidence 0-100"),
				}),
			},
			handler: s.recordEvent,
		},
		{
			def: MCPTool{
				Name:        "get_context",
				Description: "Get the shared memory digest of recent agent activity, grouped by agent. Inject it into your prompt before acting.",
				InputSchema: object(nil, schema{
					"hours":            integer("Look-back window in hours (default from server config)"),
					"include_resolved": boolean("Include resolved events, marked [RESOLVED]"),
					"flat":             boolean("One chronological list instead of per-agent sections"),
					"agent_type":       enum("Restrict to one agent", types.ValidAgentTypes),
				}),
			},
			handler: s.getContext,
		},
		{
			def: MCPTool{
				Name:        "get_digest_context",
				Description: "Get the summary-style context used for the daily digest, including what was resolved.",
				InputSchema: object(nil, schema{"hours": integer("Look-back window in hours (default 24)")}),
			},
			handler: s.getDigestContext,
		},
		{
			def: MCPTool{
				Name:        "get_event",
				Description: "Fetch one event by ID.",
				InputSchema: object([]string{"id"}, schema{"id": str("Event ID")}),
			},
			handler: s.getEvent,
		},
		{
			def: MCPTool{
				Name: "resolve_events",
				Description: "Mark active events resolved. Give exactly one target: event_id, a key (email_id, task_id, delegation_id), " +
					"a topic, or the operator's raw utterance. Utterances only resolve when they clearly say the work is done.",
				InputSchema: object(nil, withKeys(schema{
					"event_id":  str("Resolve one event"),
					"topic":     str("Resolve active events whose summary mentions this topic"),
					"utterance": str("Operator chat text, e.g. \"Pedro is handled\""),
					"note":      str("Resolution note"),
				})),
			},
			handler: s.resolve,
		},
		{
			def: MCPTool{
				Name:        "annotate_events",
				Description: "Attach an operator note to events by event_id or key without changing their status.",
				InputSchema: object([]string{"note"}, withKeys(schema{
					"event_id": str("Annotate one event"),
					"note":     str("The note"),
					"status": enum("Annotation kind", []types.AnnotationStatus{
						types.AnnotationNote, types.AnnotationResolved, types.AnnotationIncorrect, types.AnnotationOutdated,
					}),
				})),
			},
			handler: s.annotate,
		},
		{
			def: MCPTool{
				Name:        "search_events",
				Description: "Search event summaries.",
				InputSchema: object([]string{"query"}, schema{
					"query":       str("Search text"),
					"agent_type":  enum("Restrict to one agent", types.ValidAgentTypes),
					"active_only": boolean("Only unresolved events"),
					"limit":       integer("Maximum results"),
				}),
			},
			handler: s.search,
		},
		{
			def: MCPTool{
				Name:        "related_events",
				Description: "List every event referencing an email, task or delegation, newest first.",
				InputSchema: object(nil, withKeys(nil)),
			},
			handler: s.relatedEvents,
		},
		{
			def: MCPTool{
				Name:        "active_issues",
				Description: "List unresolved email and task findings plus anything flagged urgent.",
				InputSchema: object(nil, schema{"limit": integer("Maximum issues")}),
			},
			handler: s.activeIssues,
		},
		{
			def: MCPTool{
				Name:        "start_session",
				Description: "Open an agent work session; pass its id as session_id when recording events.",
				InputSchema: object([]string{"agent_type", "session_type"}, schema{
					"agent_type":   enum("Which agent", types.ValidAgentTypes),
					"session_type": str("Kind of run, e.g. triage_batch"),
					"model_used":   str("Model in use"),
				}),
			},
			handler: s.startSession,
		},
		{
			def: MCPTool{
				Name:        "complete_session",
				Description: "Close an agent work session with its outcome.",
				InputSchema: object([]string{"session_id"}, schema{
					"session_id":      str("Session to complete"),
					"items_processed": integer("Items handled"),
					"summary":         str("Outcome summary"),
					"findings":        schema{"type": "object", "description": "Structured findings"},
					"total_tokens":    integer("Tokens spent"),
					"error_message":   str("Set when the session failed"),
				}),
			},
			handler: s.completeSession,
		},
	}

	tools := make(map[string]tool, len(list))
	for _, t := range list {
		tools[t.def.Name] = t
	}
	return tools
}
