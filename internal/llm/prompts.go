// Package llm provides LLM integration for the resolution engine: intent
// classification of operator utterances and topic extraction. It includes
// strict JSON-only prompt templates and schema-validated response parsers
// that work with Anthropic, OpenAI and Ollama models.
package llm

import (
	"fmt"
	"strings"
)

// IntentClassificationPrompt asks the model whether an operator utterance is
// a completion statement about topic. Candidates are the summaries of the
// events that would be resolved, so the model can judge relevance.
func IntentClassificationPrompt(utterance, topic string, candidates []string) string {
	var list strings.Builder
	for i, c := range candidates {
		if i >= 10 {
			fmt.Fprintf(&list, "- ... and %d more\n", len(candidates)-i)
			break
		}
		fmt.Fprintf(&list, "- %s\n", c)
	}
	if list.Len() == 0 {
		list.WriteString("- (none)\n")
	}

	return fmt.Sprintf(`TASK: Decide whether the operator is reporting that an issue is finished.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

RULES:
- "statement": the operator asserts the issue about the topic is handled, done, resolved, or no longer needed.
- "question": the operator is asking about the issue ("is X resolved?", "did anyone handle X?").
- "other": anything else, including negations ("X is not handled yet", "X is still open").
- resolved is true ONLY for a "statement" that the issue is finished.
- confidence is a number from 0.0 to 1.0.

TOPIC: %s

OPEN ITEMS MENTIONING THE TOPIC:
%s
OPERATOR MESSAGE:
%s

REQUIRED JSON STRUCTURE:
{"intent": "statement", "resolved": true, "confidence": 0.95, "reason": "short explanation"}`,
		topic, list.String(), utterance)
}

// TopicExtractionPrompt asks the model which people, issues or items an
// operator utterance refers to. Vocabulary lists known topic terms the model
// should prefer when they match.
func TopicExtractionPrompt(utterance string, vocabulary []string) string {
	known := "(none)"
	if len(vocabulary) > 0 {
		known = strings.Join(vocabulary, ", ")
	}

	return fmt.Sprintf(`TASK: Extract the specific people, issues, or items the message refers to.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

RULES:
- Return short noun phrases exactly as they would appear in a work log (e.g. "Pedro", "payroll", "walk-in cooler").
- Do NOT return pronouns or vague references ("that", "it", "this issue"). If nothing specific is named, return an empty list.
- Prefer these known terms when the message refers to them: %s

MESSAGE:
%s

REQUIRED JSON STRUCTURE:
{"topics": ["Pedro"]}`,
		known, utterance)
}
