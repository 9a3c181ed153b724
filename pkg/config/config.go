package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
		RateLimit   float64       `yaml:"rate_limit"`
	} `yaml:"llm"`

	Embedding struct {
		BaseURL   string `yaml:"base_url"`
		Model     string `yaml:"model"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedding"`

	Corpus struct {
		Source         string  `yaml:"source"`
		ChunkSize      int     `yaml:"chunk_size"`
		ChunkOverlap   int     `yaml:"chunk_overlap"`
		FetchRateLimit float64 `yaml:"fetch_rate_limit"`
	} `yaml:"corpus"`

	Retrieval struct {
		TopK    int    `yaml:"top_k"`
		Backend string `yaml:"backend"`
	} `yaml:"retrieval"`

	Database struct {
		URL          string `yaml:"url"`
		TableName    string `yaml:"table_name"`
		HistoryTable string `yaml:"history_table"`
		VectorDim    int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Storage struct {
		DataDir            string `yaml:"data_dir"`
		ProductsFile       string `yaml:"products_file"`
		PromptTemplateFile string `yaml:"prompt_template_file"`
		HistoryDir         string `yaml:"history_dir"`
		UsersFile          string `yaml:"users_file"`
		SessionsFile       string `yaml:"sessions_file"`
	} `yaml:"storage"`

	Chat struct {
		HistoryTurns int `yaml:"history_turns"`
	} `yaml:"chat"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

const (
	BackendMemory   = "memory"
	BackendPGVector = "pgvector"
)

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/shopmate/config.yaml"),
			"/etc/shopmate/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	presetZeroable(&config)
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	config := &Config{}
	presetZeroable(config)
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

// overlapUnset marks a chunk overlap the file did not set.
const overlapUnset = math.MinInt32

// presetZeroable sets defaults for fields where zero is a valid setting. They
// are filled before the file is decoded so an explicit 0 in the file wins.
func presetZeroable(config *Config) {
	config.LLM.Temperature = 0.7
	config.Corpus.ChunkOverlap = overlapUnset
	config.Chat.HistoryTurns = 3
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "llama3"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 32
	}

	if config.Corpus.Source == "" {
		config.Corpus.Source = "h.txt"
	}
	if config.Corpus.ChunkSize == 0 {
		config.Corpus.ChunkSize = 1000
	}
	if config.Corpus.ChunkOverlap == overlapUnset {
		// a fifth of the chunk, capped at 200
		config.Corpus.ChunkOverlap = min(200, config.Corpus.ChunkSize/5)
	}
	if config.Corpus.FetchRateLimit == 0 {
		config.Corpus.FetchRateLimit = 2.0
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}
	if config.Retrieval.Backend == "" {
		config.Retrieval.Backend = BackendMemory
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "corpus_chunks"
	}
	if config.Database.HistoryTable == "" {
		config.Database.HistoryTable = "chat_turns"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Storage.DataDir == "" {
		config.Storage.DataDir = "data"
	}
	dataFile := func(field *string, name string) {
		if *field == "" {
			*field = filepath.Join(config.Storage.DataDir, name)
		}
	}
	dataFile(&config.Storage.ProductsFile, "products.json")
	dataFile(&config.Storage.PromptTemplateFile, "prompt_template.txt")
	dataFile(&config.Storage.HistoryDir, "chat_history")
	dataFile(&config.Storage.UsersFile, "user_credentials.json")
	dataFile(&config.Storage.SessionsFile, "chat_sessions.json")

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
