// Package config provides configuration management for the agent memory
// service.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// named by AGENTMEMORY_CONFIG, then environment variables with the
// AGENTMEMORY_ prefix. The resulting Config is passed explicitly to every
// component constructor; nothing reads the environment after startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the environment variable holding the YAML file path.
const EnvConfigFile = "AGENTMEMORY_CONFIG"

// Config holds all configuration settings for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Security SecurityConfig `yaml:"security"`
	Memory   MemoryConfig   `yaml:"memory"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int     `yaml:"port"`             // Server port (default: 6464)
	Host           string  `yaml:"host"`             // Server host (default: 127.0.0.1)
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`   // Requests per second per client (default: 10)
	RateLimitBurst int     `yaml:"rate_limit_burst"` // Burst size (default: 20)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`    // Directory for the SQLite file (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"` // Connection string when engine is postgres
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider       string        `yaml:"provider"`        // none, anthropic, openai, ollama (default: none)
	Model          string        `yaml:"model"`           // Completion model; provider default when empty
	APIKey         string        `yaml:"api_key"`         // Provider API key
	BaseURL        string        `yaml:"base_url"`        // Endpoint override (default for ollama: http://localhost:11434/v1)
	EmbeddingModel string        `yaml:"embedding_model"` // Enables semantic search when set
	Timeout        time.Duration `yaml:"timeout"`         // Per-request timeout (default: 30s)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string `yaml:"mode"`      // development or production (default: development)
	APIToken     string `yaml:"api_token"` // Bearer token required in production mode
}

// MemoryConfig tunes context assembly and resolution.
type MemoryConfig struct {
	ContextWindowHours   int           `yaml:"context_window_hours"`   // Default digest window (default: 24)
	MaxContextItems      int           `yaml:"max_context_items"`      // Digest cap (default: 100)
	PerAgentLimit        int           `yaml:"per_agent_limit"`        // Items per agent in text digests (default: 10)
	ResolutionWindowDays int           `yaml:"resolution_window_days"` // How far back corrections reach (default: 7)
	IntentThreshold      float64       `yaml:"intent_threshold"`       // Minimum confidence to commit a resolution (default: 0.8)
	IntentTimeout        time.Duration `yaml:"intent_timeout"`         // LLM confirmation budget (default: 5s)
	IntentClassifier     string        `yaml:"intent_classifier"`      // heuristic or llm (default: heuristic)
	TopicExtractor       string        `yaml:"topic_extractor"`        // heuristic or llm (default: heuristic)
	ResolutionKeywords   []string      `yaml:"resolution_keywords"`    // Pre-filter phrases; empty means the built-in list
	TopicVocabulary      []string      `yaml:"topic_vocabulary"`       // Known lowercase topics such as "payroll"
	StrictTypes          bool          `yaml:"strict_types"`           // Reject unknown agent/event types (default: true)
}

// LoggingConfig controls the slog handler built by NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text or json (default: text)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           6464,
			Host:           "127.0.0.1",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Storage: StorageConfig{
			StorageEngine: "sqlite",
			DataPath:      "./data",
		},
		LLM: LLMConfig{
			Provider: "none",
			Timeout:  30 * time.Second,
		},
		Security: SecurityConfig{
			SecurityMode: "development",
		},
		Memory: MemoryConfig{
			ContextWindowHours:   24,
			MaxContextItems:      100,
			PerAgentLimit:        10,
			ResolutionWindowDays: 7,
			IntentThreshold:      0.8,
			IntentTimeout:        5 * time.Second,
			IntentClassifier:     "heuristic",
			TopicExtractor:       "heuristic",
			StrictTypes:          true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by AGENTMEMORY_CONFIG, and AGENTMEMORY_* environment variables, in
// that order, then validates it.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("AGENTMEMORY_PORT", c.Server.Port)
	c.Server.Host = getEnv("AGENTMEMORY_HOST", c.Server.Host)
	c.Server.RateLimitRPS = getEnvFloat("AGENTMEMORY_RATE_LIMIT_RPS", c.Server.RateLimitRPS)
	c.Server.RateLimitBurst = getEnvInt("AGENTMEMORY_RATE_LIMIT_BURST", c.Server.RateLimitBurst)

	c.Storage.StorageEngine = getEnv("AGENTMEMORY_STORAGE_ENGINE", c.Storage.StorageEngine)
	c.Storage.DataPath = getEnv("AGENTMEMORY_DATA_PATH", c.Storage.DataPath)
	c.Storage.PostgresDSN = getEnv("AGENTMEMORY_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.LLM.Provider = getEnv("AGENTMEMORY_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnv("AGENTMEMORY_LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("AGENTMEMORY_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("AGENTMEMORY_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.EmbeddingModel = getEnv("AGENTMEMORY_EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.Timeout = getEnvDuration("AGENTMEMORY_LLM_TIMEOUT", c.LLM.Timeout)

	c.Security.SecurityMode = getEnv("AGENTMEMORY_SECURITY_MODE", c.Security.SecurityMode)
	c.Security.APIToken = getEnv("AGENTMEMORY_API_TOKEN", c.Security.APIToken)

	c.Memory.ContextWindowHours = getEnvInt("AGENTMEMORY_CONTEXT_WINDOW_HOURS", c.Memory.ContextWindowHours)
	c.Memory.MaxContextItems = getEnvInt("AGENTMEMORY_MAX_CONTEXT_ITEMS", c.Memory.MaxContextItems)
	c.Memory.PerAgentLimit = getEnvInt("AGENTMEMORY_PER_AGENT_LIMIT", c.Memory.PerAgentLimit)
	c.Memory.ResolutionWindowDays = getEnvInt("AGENTMEMORY_RESOLUTION_WINDOW_DAYS", c.Memory.ResolutionWindowDays)
	c.Memory.IntentThreshold = getEnvFloat("AGENTMEMORY_INTENT_THRESHOLD", c.Memory.IntentThreshold)
	c.Memory.IntentTimeout = getEnvDuration("AGENTMEMORY_INTENT_TIMEOUT", c.Memory.IntentTimeout)
	c.Memory.IntentClassifier = getEnv("AGENTMEMORY_INTENT_CLASSIFIER", c.Memory.IntentClassifier)
	c.Memory.TopicExtractor = getEnv("AGENTMEMORY_TOPIC_EXTRACTOR", c.Memory.TopicExtractor)
	c.Memory.ResolutionKeywords = getEnvList("AGENTMEMORY_RESOLUTION_KEYWORDS", c.Memory.ResolutionKeywords)
	c.Memory.TopicVocabulary = getEnvList("AGENTMEMORY_TOPIC_VOCABULARY", c.Memory.TopicVocabulary)
	c.Memory.StrictTypes = getEnvBool("AGENTMEMORY_STRICT_TYPES", c.Memory.StrictTypes)

	c.Logging.Level = getEnv("AGENTMEMORY_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("AGENTMEMORY_LOG_FORMAT", c.Logging.Format)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.engine %q is not supported", c.Storage.StorageEngine))
	}
	switch c.LLM.Provider {
	case "none", "", "anthropic", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	switch c.Security.SecurityMode {
	case "development":
	case "production":
		if c.Security.APIToken == "" {
			errs = append(errs, errors.New("security.api_token is required in production mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("security.mode %q is not supported", c.Security.SecurityMode))
	}
	if c.Memory.IntentThreshold <= 0 || c.Memory.IntentThreshold > 1 {
		errs = append(errs, fmt.Errorf("memory.intent_threshold %v must be in (0, 1]", c.Memory.IntentThreshold))
	}
	if c.Memory.ContextWindowHours <= 0 {
		errs = append(errs, errors.New("memory.context_window_hours must be positive"))
	}
	if c.Memory.ResolutionWindowDays <= 0 {
		errs = append(errs, errors.New("memory.resolution_window_days must be positive"))
	}
	for _, choice := range []struct{ key, value string }{
		{"memory.intent_classifier", c.Memory.IntentClassifier},
		{"memory.topic_extractor", c.Memory.TopicExtractor},
	} {
		if choice.value != "heuristic" && choice.value != "llm" {
			errs = append(errs, fmt.Errorf("%s %q must be heuristic or llm", choice.key, choice.value))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SQLitePath returns the database file used by the sqlite engine.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Storage.DataPath, "agentmemory.db")
}

// LLMEnabled reports whether an LLM provider is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.Provider != "" && c.LLM.Provider != "none"
}

// NewLogger builds a slog.Logger writing to w according to the logging
// section.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
