package llm

import (
	"testing"

	"github.com/scrypster/agentmemory/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextGenerator(t *testing.T) {
	gen, err := NewTextGenerator(config.LLMConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewTextGenerator(config.LLMConfig{Provider: "ollama"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", gen.GetModel())

	gen, err = NewTextGenerator(config.LLMConfig{Provider: "openai", APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", gen.GetModel())

	gen, err = NewTextGenerator(config.LLMConfig{Provider: "anthropic", APIKey: "key", Model: "claude-custom"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude-custom", gen.GetModel())

	_, err = NewTextGenerator(config.LLMConfig{Provider: "cohere"}, nil)
	assert.Error(t, err)
}

func TestNewEmbeddingGenerator(t *testing.T) {
	gen, err := NewEmbeddingGenerator(config.LLMConfig{Provider: "openai", APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Nil(t, gen, "no embedding model means no semantic search")

	gen, err = NewEmbeddingGenerator(config.LLMConfig{Provider: "anthropic", EmbeddingModel: "x"}, nil)
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewEmbeddingGenerator(config.LLMConfig{Provider: "ollama", EmbeddingModel: "nomic-embed-text"}, nil)
	require.NoError(t, err)
	require.NotNil(t, gen)
	assert.Equal(t, "nomic-embed-text", gen.GetModel())
}
