package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/scrypster/agentmemory/internal/llm"
)

// TopicExtractor finds the people, issues or items an operator utterance
// refers to. An empty result means the utterance is ambiguous.
type TopicExtractor interface {
	Extract(ctx context.Context, utterance string) ([]string, error)
}

// topicStopwords are capitalized words that never name a topic on their own.
var topicStopwords = map[string]bool{
	"i": true, "i'm": true, "i've": true, "we": true, "you": true, "he": true, "she": true, "they": true,
	"it": true, "that": true, "this": true, "those": true, "these": true, "there": true, "the": true,
	"a": true, "an": true, "and": true, "but": true, "or": true, "so": true, "ok": true, "okay": true,
	"yes": true, "no": true, "hey": true, "hi": true, "thanks": true, "please": true, "just": true,
	"is": true, "are": true, "was": true, "were": true, "has": true, "have": true, "had": true,
	"did": true, "does": true, "do": true, "can": true, "could": true, "should": true, "will": true,
	"would": true, "who": true, "what": true, "when": true, "where": true, "why": true, "how": true,
	"all": true, "everything": true, "done": true, "handled": true, "resolved": true, "fixed": true,
	"today": true, "tomorrow": true, "yesterday": true, "now": true, "also": true, "update": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true,
	"let": true, "cool": true, "sure": true, "great": true, "nice": true, "good": true, "fine": true,
	"awesome": true, "perfect": true, "alright": true, "well": true, "yeah": true, "yep": true,
	"nope": true, "if": true, "whether": true, "not": true, "check": true, "confirm": true,
	"tell": true, "make": true, "find": true, "ask": true, "btw": true, "fyi": true,
}

// HeuristicTopicExtractor treats capitalized words (names, places) and
// known vocabulary terms as topics.
type HeuristicTopicExtractor struct {
	vocabulary []string
}

// NewHeuristicTopicExtractor creates an extractor that also matches the
// given vocabulary, case-insensitively and on word boundaries.
func NewHeuristicTopicExtractor(vocabulary []string) *HeuristicTopicExtractor {
	vocab := make([]string, 0, len(vocabulary))
	for _, v := range vocabulary {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			vocab = append(vocab, v)
		}
	}
	return &HeuristicTopicExtractor{vocabulary: vocab}
}

// Extract implements TopicExtractor.
func (x *HeuristicTopicExtractor) Extract(_ context.Context, utterance string) ([]string, error) {
	var topics []string
	seen := make(map[string]bool)
	add := func(t string) {
		key := strings.ToLower(t)
		if !seen[key] {
			seen[key] = true
			topics = append(topics, t)
		}
	}

	for i, word := range splitWords(utterance) {
		word = trimPossessive(word)
		runes := []rune(word)
		if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
			continue
		}
		if topicStopwords[strings.ToLower(word)] {
			continue
		}
		// "Cool, that's done" and "Thanks!" capitalize an interjection.
		if i == 0 && setOff(utterance, word) {
			continue
		}
		add(word)
	}

	padded := " " + strings.Join(splitWords(strings.ToLower(utterance)), " ") + " "
	for _, term := range x.vocabulary {
		if strings.Contains(padded, " "+term+" ") {
			add(term)
		}
	}
	return topics, nil
}

// setOff reports whether the first word of s is followed directly by a
// comma, exclamation mark or colon.
func setOff(s, word string) bool {
	i := strings.Index(s, word)
	if i < 0 {
		return false
	}
	rest := strings.TrimPrefix(s[i+len(word):], "'s")
	rest = strings.TrimPrefix(rest, "’s")
	return strings.HasPrefix(rest, ",") || strings.HasPrefix(rest, "!") || strings.HasPrefix(rest, ":")
}

func trimPossessive(word string) string {
	return strings.TrimSuffix(strings.TrimSuffix(word, "'s"), "’s")
}

// mentionsWords reports whether text contains phrase as a run of whole
// words, ignoring case and possessives. "cool" does not match "cooler".
func mentionsWords(text, phrase string) bool {
	want := normalizedWords(phrase)
	if len(want) == 0 {
		return false
	}
	return strings.Contains(" "+strings.Join(normalizedWords(text), " ")+" ", " "+strings.Join(want, " ")+" ")
}

func normalizedWords(s string) []string {
	words := splitWords(strings.ToLower(s))
	for i, w := range words {
		words[i] = trimPossessive(w)
	}
	return words
}

// splitWords splits on anything that is not a letter, digit, apostrophe or
// hyphen.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’' && r != '-'
	})
}

// LLMTopicExtractor asks a TextGenerator for the topics of an utterance,
// bounded by the same timeout as intent classification.
type LLMTopicExtractor struct {
	gen        llm.TextGenerator
	vocabulary []string
	timeout    time.Duration
}

// NewLLMTopicExtractor creates an extractor backed by gen. A zero timeout
// leaves the caller's deadline in charge.
func NewLLMTopicExtractor(gen llm.TextGenerator, vocabulary []string, timeout time.Duration) *LLMTopicExtractor {
	return &LLMTopicExtractor{gen: gen, vocabulary: vocabulary, timeout: timeout}
}

// Extract implements TopicExtractor.
func (x *LLMTopicExtractor) Extract(ctx context.Context, utterance string) ([]string, error) {
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	raw, err := x.gen.Complete(ctx, llm.TopicExtractionPrompt(utterance, x.vocabulary))
	if err != nil {
		return nil, fmt.Errorf("topic extraction: %w", err)
	}
	return llm.ParseTopicResponse(raw)
}

func newTopicExtractor(cfg Config, gen llm.TextGenerator, logger *slog.Logger) TopicExtractor {
	if cfg.TopicExtractor == StrategyLLM {
		if gen != nil {
			return NewLLMTopicExtractor(gen, cfg.TopicVocabulary, cfg.IntentTimeout)
		}
		logger.Warn("engine: llm topic extractor requested without an LLM provider, using heuristic")
	}
	return NewHeuristicTopicExtractor(cfg.TopicVocabulary)
}
