package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON string
	}{
		{
			name:     "plain JSON object",
			input:    `{"key": "value"}`,
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with markdown code block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with surrounding text",
			input:    "Here is the JSON:\n{\"key\": \"value\"}\nEnd of JSON",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "nested JSON object",
			input:    `{"outer": {"inner": "value"}}`,
			wantJSON: `{"outer": {"inner": "value"}}`,
		},
		{
			name:     "braces inside strings",
			input:    `{"text": "a } b { c"} trailing`,
			wantJSON: `{"text": "a } b { c"}`,
		},
		{
			name:     "JSON with escaped quotes in string",
			input:    `{"text": "He said \"hello\""}`,
			wantJSON: `{"text": "He said \"hello\""}`,
		},
		{
			name:     "no JSON present",
			input:    "just some text without json",
			wantJSON: "just some text without json",
		},
		{
			name:     "empty string",
			input:    "",
			wantJSON: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSON(tt.input)
			if got != tt.wantJSON {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.wantJSON)
			}
		})
	}
}

func TestParseIntentResponse(t *testing.T) {
	resp, err := ParseIntentResponse("Sure!\n```json\n{\"intent\": \"statement\", \"resolved\": true, \"confidence\": 0.92, \"reason\": \"says handled\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "statement", resp.Intent)
	assert.True(t, resp.Resolved)
	assert.InDelta(t, 0.92, resp.Confidence, 1e-9)

	invalid := []struct {
		name  string
		input string
	}{
		{"not json", "yes it is resolved"},
		{"missing resolved", `{"intent": "statement", "confidence": 0.9}`},
		{"unknown intent", `{"intent": "command", "resolved": true, "confidence": 0.9}`},
		{"confidence above one", `{"intent": "statement", "resolved": true, "confidence": 95}`},
		{"resolved as string", `{"intent": "statement", "resolved": "true", "confidence": 0.9}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIntentResponse(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestParseTopicResponse(t *testing.T) {
	topics, err := ParseTopicResponse(`{"topics": ["Pedro", " pedro ", "payroll"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pedro", "payroll"}, topics)

	topics, err = ParseTopicResponse(`{"topics": []}`)
	require.NoError(t, err)
	assert.Empty(t, topics)

	_, err = ParseTopicResponse(`{"topics": "Pedro"}`)
	assert.Error(t, err)

	_, err = ParseTopicResponse(`{"topics": [""]}`)
	assert.Error(t, err)
}

func TestPromptsIncludeInputs(t *testing.T) {
	p := IntentClassificationPrompt("Pedro was handled", "Pedro", []string{"Analyzed urgent payroll email for Pedro"})
	assert.Contains(t, p, "Pedro was handled")
	assert.Contains(t, p, "TOPIC: Pedro")
	assert.Contains(t, p, "- Analyzed urgent payroll email for Pedro")

	p = TopicExtractionPrompt("the cooler is fixed", []string{"walk-in cooler", "payroll"})
	assert.Contains(t, p, "walk-in cooler, payroll")
	assert.Contains(t, p, "the cooler is fixed")
}
