package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scrypster/agentmemory/internal/llm"
)

// IntentKind classifies what an utterance does.
type IntentKind string

// Intent kinds
const (
	IntentStatement IntentKind = "statement" // Asserts something, e.g. "Pedro was handled"
	IntentQuestion  IntentKind = "question"  // Asks about status, e.g. "is Pedro resolved?"
	IntentOther     IntentKind = "other"
)

// Intent is the classification of an utterance with respect to one topic.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	Resolved   bool       `json:"resolved"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason,omitempty"`
}

// Confirms reports whether the intent is a completion statement at or above
// threshold.
func (i Intent) Confirms(threshold float64) bool {
	return i.Kind == IntentStatement && i.Resolved && i.Confidence >= threshold
}

// IntentClassifier decides whether an utterance states that the issue about
// topic is finished. Candidates are the summaries that would be resolved.
type IntentClassifier interface {
	Classify(ctx context.Context, utterance, topic string, candidates []string) (Intent, error)
}

var questionOpeners = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "did": true, "does": true, "do": true,
	"has": true, "have": true, "can": true, "could": true, "should": true, "will": true,
	"would": true, "who": true, "what": true, "when": true, "where": true, "why": true, "how": true,
	"any": true, "anyone": true,
}

var negations = map[string]bool{
	"not": true, "never": true, "nobody": true, "no": true, "without": true, "unresolved": true,
	"pending": true, "still": true,
}

// requestMarkers turn a sentence into an indirect question or a request:
// "let me know if Pedro was handled", "check whether payroll is done".
var requestMarkers = []string{
	"if", "whether", "let me know", "lmk", "check", "double-check", "verify", "confirm",
	"tell me", "make sure", "find out", "see if", "can you", "could you", "ask", "wondering",
	"not sure", "remind me",
}

var hedges = []string{"maybe", "might", "probably", "i think", "i guess", "hopefully", "should be", "supposed to"}

// HeuristicIntentClassifier separates questions, negations and hedged
// remarks from plain completion statements using surface cues.
type HeuristicIntentClassifier struct {
	keywords []string
}

// NewHeuristicIntentClassifier creates a classifier that recognizes the
// given completion keywords.
func NewHeuristicIntentClassifier(keywords []string) *HeuristicIntentClassifier {
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return &HeuristicIntentClassifier{keywords: kw}
}

// Classify implements IntentClassifier.
func (c *HeuristicIntentClassifier) Classify(_ context.Context, utterance, _ string, _ []string) (Intent, error) {
	text := strings.ToLower(strings.TrimSpace(utterance))
	words := splitWords(text)
	if len(words) == 0 {
		return Intent{Kind: IntentOther, Confidence: 1, Reason: "empty message"}, nil
	}

	if strings.HasSuffix(text, "?") || questionOpeners[words[0]] {
		return Intent{Kind: IntentQuestion, Confidence: 0.95, Reason: "phrased as a question"}, nil
	}

	joined := " " + strings.Join(words, " ") + " "
	for _, m := range requestMarkers {
		if strings.Contains(joined, " "+m+" ") {
			return Intent{Kind: IntentQuestion, Confidence: 0.9, Reason: fmt.Sprintf("indirect question or request (%q)", m)}, nil
		}
	}

	// Keyword phrases may contain negation words ("no longer needed"), so
	// they are blanked out before looking for negations.
	padded := joined
	matched := ""
	for _, k := range c.keywords {
		phrase := " " + strings.Join(splitWords(k), " ") + " "
		if strings.Contains(padded, phrase) {
			if matched == "" {
				matched = k
			}
			padded = strings.ReplaceAll(padded, phrase, " ")
		}
	}
	if matched == "" {
		return Intent{Kind: IntentOther, Confidence: 0.6, Reason: "no completion keyword"}, nil
	}

	for _, w := range strings.Fields(padded) {
		if negations[w] || strings.HasSuffix(w, "n't") || strings.HasSuffix(w, "n’t") {
			return Intent{Kind: IntentOther, Confidence: 0.9, Reason: fmt.Sprintf("negated by %q", w)}, nil
		}
	}

	for _, h := range hedges {
		if strings.Contains(" "+text+" ", " "+h+" ") {
			return Intent{Kind: IntentStatement, Resolved: true, Confidence: 0.55, Reason: fmt.Sprintf("hedged with %q", h)}, nil
		}
	}

	return Intent{Kind: IntentStatement, Resolved: true, Confidence: 0.9, Reason: fmt.Sprintf("states %q", matched)}, nil
}

// LLMIntentClassifier asks a TextGenerator to classify the utterance, bounded
// by a short timeout.
type LLMIntentClassifier struct {
	gen     llm.TextGenerator
	timeout time.Duration
}

// NewLLMIntentClassifier creates a classifier backed by gen.
func NewLLMIntentClassifier(gen llm.TextGenerator, timeout time.Duration) *LLMIntentClassifier {
	return &LLMIntentClassifier{gen: gen, timeout: timeout}
}

// Classify implements IntentClassifier. Provider errors, timeouts and
// malformed responses are returned as errors.
func (c *LLMIntentClassifier) Classify(ctx context.Context, utterance, topic string, candidates []string) (Intent, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.gen.Complete(ctx, llm.IntentClassificationPrompt(utterance, topic, candidates))
	if err != nil {
		return Intent{}, fmt.Errorf("intent classification: %w", err)
	}
	resp, err := llm.ParseIntentResponse(raw)
	if err != nil {
		return Intent{}, err
	}
	return Intent{
		Kind:       IntentKind(resp.Intent),
		Resolved:   resp.Resolved,
		Confidence: resp.Confidence,
		Reason:     resp.Reason,
	}, nil
}

func newIntentClassifier(cfg Config, gen llm.TextGenerator, logger *slog.Logger) IntentClassifier {
	if cfg.IntentClassifier == StrategyLLM {
		if gen != nil {
			return NewLLMIntentClassifier(gen, cfg.IntentTimeout)
		}
		logger.Warn("engine: llm intent classifier requested without an LLM provider, using heuristic")
	}
	return NewHeuristicIntentClassifier(cfg.ResolutionKeywords)
}
