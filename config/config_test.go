package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "google-key")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
	assert.Equal(t, 200, cfg.Document.ChunkOverlap)
	assert.Equal(t, "\n", cfg.Document.Separator)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.CondenseQuestion)
	assert.Equal(t, "memory", cfg.VectorDB.Backend)
	assert.Equal(t, "gemini", cfg.Embed.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Provider.InitialBackoff)
	assert.Equal(t, 2, cfg.Worker.Concurrency)

	assert.Equal(t, "google-key", cfg.Embed.APIKey, "empty keys fall back to GOOGLE_API_KEY")
	assert.Equal(t, "google-key", cfg.LLM.APIKey)

	_, err = os.Stat(path)
	assert.NoError(t, err, "a default config file should be written")
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("PDFCHAT_TEST_LLM_KEY", "llm-secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
document:
  chunk_size: 500
  chunk_overlap: 50
retrieval:
  top_k: 6
  condense_question: true
embed:
  provider: local
  dimensions: 128
llm:
  api_key: ${PDFCHAT_TEST_LLM_KEY}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Document.ChunkSize)
	assert.Equal(t, 50, cfg.Document.ChunkOverlap)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
	assert.True(t, cfg.Retrieval.CondenseQuestion)
	assert.Equal(t, "local", cfg.Embed.Provider)
	assert.Equal(t, 128, cfg.Embed.Dimensions)
	assert.Equal(t, "llm-secret", cfg.LLM.APIKey)
}

func TestLoadRejectsBadOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
document:
  chunk_size: 100
  chunk_overlap: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	var cfgErr *document.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "chunk_overlap", cfgErr.Field)
}

func TestValidateTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Retrieval.TopK = 0
	assert.Error(t, cfg.Validate())

	cfg.Retrieval.TopK = 4
	cfg.VectorDB.Backend = "qdrant"
	assert.Error(t, cfg.Validate())

	cfg.VectorDB.Backend = "memory"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}
