package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "http://localhost:11434"
  model: "llama3"
  max_tokens: 1000
  temperature: 0.5
  timeout: 30s

embedding:
  model: "nomic-embed-text:latest"
  batch_size: 16

corpus:
  source: "docs/catalog.txt"
  chunk_size: 500
  chunk_overlap: 100

retrieval:
  top_k: 4
  backend: pgvector

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_chunks"
  vector_dim: 768

storage:
  data_dir: "/var/lib/shopmate"

chat:
  history_turns: 2

log:
  level: debug
  format: json
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, 30*time.Second, config.LLM.Timeout)
	assert.Equal(t, "http://localhost:11434", config.Embedding.BaseURL)
	assert.Equal(t, 16, config.Embedding.BatchSize)
	assert.Equal(t, "docs/catalog.txt", config.Corpus.Source)
	assert.Equal(t, 500, config.Corpus.ChunkSize)
	assert.Equal(t, 100, config.Corpus.ChunkOverlap)
	assert.Equal(t, 4, config.Retrieval.TopK)
	assert.Equal(t, BackendPGVector, config.Retrieval.Backend)
	assert.Equal(t, "test_chunks", config.Database.TableName)
	assert.Equal(t, "chat_turns", config.Database.HistoryTable)
	assert.Equal(t, filepath.Join("/var/lib/shopmate", "products.json"), config.Storage.ProductsFile)
	assert.Equal(t, filepath.Join("/var/lib/shopmate", "chat_history"), config.Storage.HistoryDir)
	assert.Equal(t, 2, config.Chat.HistoryTurns)
	assert.Equal(t, "json", config.Log.Format)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigExplicitZeros(t *testing.T) {
	tests := []struct {
		name         string
		data         string
		chunkSize    int
		chunkOverlap int
		historyTurns int
		temperature  float64
	}{
		{
			name:         "zero overlap and history kept",
			data:         "corpus:\n  chunk_size: 100\n  chunk_overlap: 0\nchat:\n  history_turns: 0\nllm:\n  temperature: 0\n",
			chunkSize:    100,
			chunkOverlap: 0,
			historyTurns: 0,
			temperature:  0,
		},
		{
			name:         "overlap follows a small chunk size",
			data:         "corpus:\n  chunk_size: 100\n",
			chunkSize:    100,
			chunkOverlap: 20,
			historyTurns: 3,
			temperature:  0.7,
		},
		{
			name:         "absent fields use defaults",
			data:         "log:\n  level: warn\n",
			chunkSize:    1000,
			chunkOverlap: 200,
			historyTurns: 3,
			temperature:  0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.data), 0644))

			config, err := LoadConfig(configPath)
			require.NoError(t, err)

			assert.Equal(t, tt.chunkSize, config.Corpus.ChunkSize)
			assert.Equal(t, tt.chunkOverlap, config.Corpus.ChunkOverlap)
			assert.Equal(t, tt.historyTurns, config.Chat.HistoryTurns)
			assert.Equal(t, tt.temperature, config.LLM.Temperature)
			assert.Empty(t, config.Validate())
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm: [unterminated"), 0644))

	_, err := LoadConfig(configPath)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")

	config := Default()

	assert.Equal(t, 1000, config.Corpus.ChunkSize)
	assert.Equal(t, 200, config.Corpus.ChunkOverlap)
	assert.Equal(t, 5, config.Retrieval.TopK)
	assert.Equal(t, 3, config.Chat.HistoryTurns)
	assert.Equal(t, BackendMemory, config.Retrieval.Backend)
	assert.Equal(t, filepath.Join("data", "prompt_template.txt"), config.Storage.PromptTemplateFile)
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		fields []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "overlap not smaller than chunk size",
			mutate: func(c *Config) {
				c.Corpus.ChunkSize = 100
				c.Corpus.ChunkOverlap = 100
			},
			fields: []string{"corpus.chunk_overlap"},
		},
		{
			name: "invalid llm settings",
			mutate: func(c *Config) {
				c.LLM.BaseURL = "invalid-url"
				c.LLM.MaxTokens = 10000
				c.LLM.Temperature = 3.0
			},
			fields: []string{"llm.base_url", "llm.max_tokens", "llm.temperature"},
		},
		{
			name: "pgvector without database",
			mutate: func(c *Config) {
				c.Retrieval.Backend = BackendPGVector
				c.Database.URL = ""
			},
			fields: []string{"database.url"},
		},
		{
			name: "unknown backend and bad top k",
			mutate: func(c *Config) {
				c.Retrieval.Backend = "faiss"
				c.Retrieval.TopK = 0
			},
			fields: []string{"retrieval.top_k", "retrieval.backend"},
		},
		{
			name: "negative history window",
			mutate: func(c *Config) {
				c.Chat.HistoryTurns = -1
			},
			fields: []string{"chat.history_turns"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			config.Database.URL = ""
			tt.mutate(config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.fields))
			for i, field := range tt.fields {
				assert.Equal(t, field, errors[i].Field)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, ":9090", config.Server.Addr)
	assert.Equal(t, "debug", config.Log.Level)
}
