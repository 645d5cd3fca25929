package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentmemory/internal/config"
)

func TestHeuristicIntentClassifier(t *testing.T) {
	c := NewHeuristicIntentClassifier(DefaultResolutionKeywords)
	threshold := DefaultConfig().IntentThreshold

	tests := []struct {
		utterance string
		kind      IntentKind
		confirms  bool
	}{
		{"Pedro was handled", IntentStatement, true},
		{"Pedro's payroll issue has been taken care of.", IntentStatement, true},
		{"Saturday is covered, Ana took it", IntentStatement, true},
		{"The cooler shift is no longer needed", IntentStatement, true},
		{"is Pedro resolved?", IntentQuestion, false},
		{"Has the payroll thing been fixed", IntentQuestion, false},
		{"Pedro is not handled yet", IntentOther, false},
		{"payroll hasn't been fixed", IntentOther, false},
		{"Nobody handled Pedro", IntentOther, false},
		{"I think Pedro is done", IntentStatement, false},
		{"Pedro called again", IntentOther, false},
		{"Let me know if Pedro was handled", IntentQuestion, false},
		{"Check whether Pedro is done", IntentQuestion, false},
		{"Please make sure the cooler is fixed", IntentQuestion, false},
		{"Tell me when payroll is resolved", IntentQuestion, false},
		{"Not sure Saturday is covered", IntentQuestion, false},
		{"Ana will confirm Pedro is handled", IntentQuestion, false},
		{"Cool, Pedro's issue is done", IntentStatement, true},
		{"", IntentOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			intent, err := c.Classify(context.Background(), tt.utterance, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, intent.Kind)
			assert.Equal(t, tt.confirms, intent.Confirms(threshold), "reason: %s", intent.Reason)
		})
	}
}

func TestHeuristicTopicExtractor(t *testing.T) {
	x := NewHeuristicTopicExtractor([]string{"Payroll", "walk-in cooler", " "})

	tests := []struct {
		utterance string
		want      []string
	}{
		{"Pedro was handled", []string{"Pedro"}},
		{"Pedro's issue was handled", []string{"Pedro"}},
		{"is Pedro resolved?", []string{"Pedro"}},
		{"that's done now", nil},
		{"That's done now.", nil},
		{"The payroll problem is fixed", []string{"payroll"}},
		{"Ana fixed the walk-in cooler on Monday", []string{"Ana", "walk-in cooler"}},
		{"Maria and Pedro and maria are covered", []string{"Maria", "Pedro"}},
		{"it's done, thanks", nil},
		{"Cool, that's done now", nil},
		{"Great! all handled", nil},
		{"Sure that's fixed", nil},
		{"Let me know if Pedro was handled", []string{"Pedro"}},
		{"Awesome, Pedro's shift is covered", []string{"Pedro"}},
		{"Pedro's shift is covered", []string{"Pedro"}},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			got, err := x.Extract(context.Background(), tt.utterance)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMentionsWords(t *testing.T) {
	tests := []struct {
		text, phrase string
		want         bool
	}{
		{"Walk-in cooler temperature alarm", "cooler", true},
		{"Walk-in cooler temperature alarm", "walk-in cooler", true},
		{"Walk-in cooler temperature alarm", "Cool", false},
		{"Broken outlet in prep kitchen", "Let", false},
		{"Answered: Pedro's paycheck question", "Pedro", true},
		{"Analyzed invoice from Anatoly", "Ana", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text+" | "+tt.phrase, func(t *testing.T) {
			assert.Equal(t, tt.want, mentionsWords(tt.text, tt.phrase))
		})
	}
}

func TestConfigFrom(t *testing.T) {
	mem := config.Default().Memory
	mem.ContextWindowHours = 12
	mem.ResolutionWindowDays = 3
	mem.IntentTimeout = 2 * time.Second
	mem.TopicVocabulary = []string{"payroll"}
	mem.StrictTypes = false

	cfg := ConfigFrom(mem)
	assert.Equal(t, 12*time.Hour, cfg.ContextWindow)
	assert.Equal(t, 72*time.Hour, cfg.ResolutionWindow)
	assert.Equal(t, 2*time.Second, cfg.IntentTimeout)
	assert.Equal(t, DefaultResolutionKeywords, cfg.ResolutionKeywords, "empty keyword list keeps the built-in list")
	assert.Equal(t, []string{"payroll"}, cfg.TopicVocabulary)
	assert.False(t, cfg.StrictTypes)
	require.NoError(t, cfg.Validate())

	cfg.IntentClassifier = "regex"
	assert.Error(t, cfg.Validate())
}

func TestStrategySelectionFallsBackWithoutLLM(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntentClassifier = StrategyLLM
	cfg.TopicExtractor = StrategyLLM

	o := buildOptions(cfg, nil)
	assert.IsType(t, &HeuristicIntentClassifier{}, o.intents)
	assert.IsType(t, &HeuristicTopicExtractor{}, o.topics)

	o = buildOptions(cfg, []Option{WithTextGenerator(&fakeGenerator{})})
	assert.IsType(t, &LLMIntentClassifier{}, o.intents)
	assert.IsType(t, &LLMTopicExtractor{}, o.topics)
}

// breakerGenerator is a fakeGenerator that reports a circuit breaker.
type breakerGenerator struct {
	fakeGenerator
	state string
}

func (b *breakerGenerator) BreakerState() string { return b.state }

func TestService_LLMState(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, "disabled", svc.LLMState())

	svc, _ = newTestService(t, WithTextGenerator(&fakeGenerator{}))
	assert.Equal(t, "ok", svc.LLMState())

	svc, _ = newTestService(t, WithTextGenerator(&breakerGenerator{state: "open"}))
	assert.Equal(t, "open", svc.LLMState())
}
