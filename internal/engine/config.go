package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/agentmemory/internal/config"
)

// DefaultResolutionKeywords is the correction pre-filter used when none are
// configured.
var DefaultResolutionKeywords = []string{
	"handled",
	"resolved",
	"done",
	"no longer needed",
	"taken care of",
	"covered",
	"completed",
	"fixed",
	"sorted out",
	"all set",
}

// Classifier and extractor strategy names.
const (
	StrategyHeuristic = "heuristic"
	StrategyLLM       = "llm"
)

// Config holds configuration for the memory engine.
type Config struct {
	// ContextWindow is the default look-back for BuildContext (default: 24h).
	ContextWindow time.Duration

	// MaxContextItems caps a digest; the oldest items are dropped (default: 100).
	MaxContextItems int

	// PerAgentLimit caps items per agent section in text digests (default: 10).
	PerAgentLimit int

	// ResolutionWindow bounds how far back corrections reach (default: 7 days).
	ResolutionWindow time.Duration

	// IntentThreshold is the minimum classifier confidence for committing a
	// resolution from free text (default: 0.8).
	IntentThreshold float64

	// IntentTimeout bounds each intent classification call (default: 5s).
	IntentTimeout time.Duration

	// IntentClassifier and TopicExtractor select "heuristic" or "llm".
	IntentClassifier string
	TopicExtractor   string

	// ResolutionKeywords is the correction pre-filter (default: DefaultResolutionKeywords).
	ResolutionKeywords []string

	// TopicVocabulary lists known topic terms matched in utterances.
	TopicVocabulary []string

	// StrictTypes rejects unknown agent/event types instead of coercing
	// them to "other" (default: true).
	StrictTypes bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ContextWindow:      24 * time.Hour,
		MaxContextItems:    100,
		PerAgentLimit:      10,
		ResolutionWindow:   7 * 24 * time.Hour,
		IntentThreshold:    0.8,
		IntentTimeout:      5 * time.Second,
		IntentClassifier:   StrategyHeuristic,
		TopicExtractor:     StrategyHeuristic,
		ResolutionKeywords: DefaultResolutionKeywords,
		StrictTypes:        true,
	}
}

// ConfigFrom maps the memory section of the service configuration onto an
// engine Config. Zero values fall back to the defaults.
func ConfigFrom(m config.MemoryConfig) Config {
	cfg := DefaultConfig()
	if m.ContextWindowHours > 0 {
		cfg.ContextWindow = time.Duration(m.ContextWindowHours) * time.Hour
	}
	if m.MaxContextItems > 0 {
		cfg.MaxContextItems = m.MaxContextItems
	}
	if m.PerAgentLimit > 0 {
		cfg.PerAgentLimit = m.PerAgentLimit
	}
	if m.ResolutionWindowDays > 0 {
		cfg.ResolutionWindow = time.Duration(m.ResolutionWindowDays) * 24 * time.Hour
	}
	if m.IntentThreshold > 0 {
		cfg.IntentThreshold = m.IntentThreshold
	}
	if m.IntentTimeout > 0 {
		cfg.IntentTimeout = m.IntentTimeout
	}
	if m.IntentClassifier != "" {
		cfg.IntentClassifier = m.IntentClassifier
	}
	if m.TopicExtractor != "" {
		cfg.TopicExtractor = m.TopicExtractor
	}
	if len(m.ResolutionKeywords) > 0 {
		cfg.ResolutionKeywords = m.ResolutionKeywords
	}
	cfg.TopicVocabulary = m.TopicVocabulary
	cfg.StrictTypes = m.StrictTypes
	return cfg
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.ContextWindow <= 0 {
		return fmt.Errorf("ContextWindow must be > 0, got %v", c.ContextWindow)
	}
	if c.MaxContextItems < 1 {
		return fmt.Errorf("MaxContextItems must be >= 1, got %d", c.MaxContextItems)
	}
	if c.PerAgentLimit < 1 {
		return fmt.Errorf("PerAgentLimit must be >= 1, got %d", c.PerAgentLimit)
	}
	if c.ResolutionWindow <= 0 {
		return fmt.Errorf("ResolutionWindow must be > 0, got %v", c.ResolutionWindow)
	}
	if c.IntentThreshold <= 0 || c.IntentThreshold > 1 {
		return fmt.Errorf("IntentThreshold must be in (0, 1], got %v", c.IntentThreshold)
	}
	if c.IntentTimeout <= 0 {
		return fmt.Errorf("IntentTimeout must be > 0, got %v", c.IntentTimeout)
	}
	for _, s := range []string{c.IntentClassifier, c.TopicExtractor} {
		if s != StrategyHeuristic && s != StrategyLLM {
			return fmt.Errorf("unknown strategy %q", s)
		}
	}
	if len(c.ResolutionKeywords) == 0 {
		return fmt.Errorf("ResolutionKeywords must not be empty")
	}
	return nil
}
