package llm

import (
	"testing"
)

func FuzzParseIntentResponse(f *testing.F) {
	f.Add(`{"intent": "statement", "resolved": true, "confidence": 0.9}`)
	f.Add(``)
	f.Add(`not json at all`)
	f.Add("```json\n{\"intent\": \"question\", \"resolved\": false, \"confidence\": 0.1}\n```")
	f.Add(`{"intent": "statement", "resolved": true`)
	f.Add(`{"intent": null, "resolved": null, "confidence": null}`)
	f.Add(`{"intent": "statement", "resolved": true, "confidence": "0.9"}`)
	f.Add(`{{{`)
	f.Add(`[{"intent": "statement"}]`)
	f.Add(`Text before {"intent": "other", "resolved": false, "confidence": 0.5} text after`)

	f.Fuzz(func(t *testing.T, input string) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("ParseIntentResponse panicked on input %q: %v", input, r)
			}
		}()
		resp, err := ParseIntentResponse(input)
		if err == nil && (resp.Confidence < 0 || resp.Confidence > 1) {
			t.Errorf("accepted out-of-range confidence %v", resp.Confidence)
		}
	})
}

func FuzzParseTopicResponse(f *testing.F) {
	f.Add(`{"topics": ["Pedro"]}`)
	f.Add(`{"topics": null}`)
	f.Add(`{"topics": [1, 2]}`)
	f.Add(`{"topics": ["a", "A", " a "]}`)
	f.Add(`garbage`)

	f.Fuzz(func(t *testing.T, input string) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("ParseTopicResponse panicked on input %q: %v", input, r)
			}
		}()
		topics, err := ParseTopicResponse(input)
		if err == nil {
			for _, topic := range topics {
				if topic == "" {
					t.Errorf("returned empty topic for %q", input)
				}
			}
		}
	})
}
