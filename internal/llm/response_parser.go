package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// IntentResponse is the model's classification of an operator utterance.
type IntentResponse struct {
	Intent     string  `json:"intent"` // statement, question or other
	Resolved   bool    `json:"resolved"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// TopicResponse lists the topics the model found in an utterance.
type TopicResponse struct {
	Topics []string `json:"topics"`
}

var intentSchema = jsonschema.MustCompileString("intent.schema.json", `{
	"type": "object",
	"required": ["intent", "resolved", "confidence"],
	"properties": {
		"intent": {"enum": ["statement", "question", "other"]},
		"resolved": {"type": "boolean"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": "string"}
	}
}`)

var topicSchema = jsonschema.MustCompileString("topic.schema.json", `{
	"type": "object",
	"required": ["topics"],
	"properties": {
		"topics": {
			"type": "array",
			"maxItems": 10,
			"items": {"type": "string", "minLength": 1, "maxLength": 80}
		}
	}
}`)

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// decodeValidated extracts the JSON object from raw, validates it against
// schema, then decodes it into dst.
func decodeValidated(raw string, schema *jsonschema.Schema, dst interface{}) error {
	body := extractJSON(raw)

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ParseIntentResponse parses and validates an intent classification.
// Any deviation from the expected shape is an error; callers treat errors
// as "not a completion statement".
func ParseIntentResponse(raw string) (*IntentResponse, error) {
	var resp IntentResponse
	if err := decodeValidated(raw, intentSchema, &resp); err != nil {
		return nil, fmt.Errorf("intent: %w", err)
	}
	return &resp, nil
}

// ParseTopicResponse parses and validates a topic extraction. Topics are
// trimmed and de-duplicated case-insensitively.
func ParseTopicResponse(raw string) ([]string, error) {
	var resp TopicResponse
	if err := decodeValidated(raw, topicSchema, &resp); err != nil {
		return nil, fmt.Errorf("topics: %w", err)
	}

	seen := make(map[string]bool, len(resp.Topics))
	topics := make([]string, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		topics = append(topics, t)
	}
	return topics, nil
}
