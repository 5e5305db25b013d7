// Package config provides configuration management for CogMem.
// Defaults are overlaid by an optional YAML config file, which is in turn
// overridden by environment variables with the COGMEM_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the CogMem application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host      string  `yaml:"host"`       // Server host (default: 127.0.0.1)
	Port      int     `yaml:"port"`       // Server port (default: 7171)
	RateLimit float64 `yaml:"rate_limit"` // Requests per second per server (default: 20)
	RateBurst int     `yaml:"rate_burst"` // Burst allowance (default: 40)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine   string `yaml:"engine"`    // Storage engine: sqlite, postgres (default: sqlite)
	DataPath string `yaml:"data_path"` // Data directory for sqlite and index files (default: ./data)
	DSN      string `yaml:"dsn"`       // Postgres connection string (engine=postgres only)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider       string `yaml:"provider"`        // LLM provider: ollama, openai, anthropic (default: ollama)
	APIKey         string `yaml:"api_key"`         // API key for openai/anthropic
	Model          string `yaml:"model"`           // Completion model name
	EmbeddingModel string `yaml:"embedding_model"` // Embedding model name
	BaseURL        string `yaml:"base_url"`        // Provider base URL override
	OllamaURL      string `yaml:"ollama_url"`      // Ollama URL for embeddings when provider has none (default: http://localhost:11434)
}

// MemoryConfig contains memory engine tuning knobs.
type MemoryConfig struct {
	EmbeddingDim        int     `yaml:"embedding_dim"`        // Expected embedding dimension, 0 = adopt from first vector
	SearchLimit         int     `yaml:"search_limit"`         // Default result count for retrieval (default: 5)
	ConnectionThreshold float64 `yaml:"connection_threshold"` // Minimum similarity for bubble connections (default: 0.6)
	MaxConnections      int     `yaml:"max_connections"`      // Maximum connections per new bubble (default: 5)
	RecencyDecayRate    float64 `yaml:"recency_decay_rate"`   // Exponential decay rate per day for episodic scores (default: 0.05)
	SummaryInterval     int     `yaml:"summary_interval"`     // Regenerate summary every N turns (default: 20)
	SummaryMaxTurns     int     `yaml:"summary_max_turns"`    // Cap on turns fed to the summarizer (default: 200)
	EmbeddingCacheSize  int64   `yaml:"embedding_cache_size"` // Max cached embedding vectors (default: 4096)
	WatchIndexDir       bool    `yaml:"watch_index_dir"`      // Watch the index directory for external rewrites (default: true)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	APIToken string `yaml:"api_token"` // Bearer token for the REST API; empty disables auth
}

// Load builds the configuration. When path is non-empty the YAML file at that
// location is overlaid on the defaults; environment variables with the
// COGMEM_ prefix take precedence over both.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "postgres" {
		return nil, fmt.Errorf("config: unsupported storage engine %q", cfg.Storage.Engine)
	}
	if cfg.Storage.Engine == "postgres" && cfg.Storage.DSN == "" {
		return nil, fmt.Errorf("config: storage engine postgres requires a DSN")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      7171,
			RateLimit: 20,
			RateBurst: 40,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "qwen2.5:7b",
			EmbeddingModel: "nomic-embed-text",
			OllamaURL:      "http://localhost:11434",
		},
		Memory: MemoryConfig{
			SearchLimit:         5,
			ConnectionThreshold: 0.6,
			MaxConnections:      5,
			RecencyDecayRate:    0.05,
			SummaryInterval:     20,
			SummaryMaxTurns:     200,
			EmbeddingCacheSize:  4096,
			WatchIndexDir:       true,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "COGMEM_HOST")
	setInt(&cfg.Server.Port, "COGMEM_PORT")
	setFloat(&cfg.Server.RateLimit, "COGMEM_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "COGMEM_RATE_BURST")

	setString(&cfg.Storage.Engine, "COGMEM_STORAGE_ENGINE")
	setString(&cfg.Storage.DataPath, "COGMEM_DATA_PATH")
	setString(&cfg.Storage.DSN, "COGMEM_POSTGRES_DSN")

	setString(&cfg.LLM.Provider, "COGMEM_LLM_PROVIDER")
	setString(&cfg.LLM.APIKey, "COGMEM_LLM_API_KEY")
	setString(&cfg.LLM.Model, "COGMEM_LLM_MODEL")
	setString(&cfg.LLM.EmbeddingModel, "COGMEM_EMBEDDING_MODEL")
	setString(&cfg.LLM.BaseURL, "COGMEM_LLM_BASE_URL")
	setString(&cfg.LLM.OllamaURL, "COGMEM_OLLAMA_URL")

	setInt(&cfg.Memory.EmbeddingDim, "COGMEM_EMBEDDING_DIM")
	setInt(&cfg.Memory.SearchLimit, "COGMEM_SEARCH_LIMIT")
	setFloat(&cfg.Memory.ConnectionThreshold, "COGMEM_CONNECTION_THRESHOLD")
	setInt(&cfg.Memory.MaxConnections, "COGMEM_MAX_CONNECTIONS")
	setFloat(&cfg.Memory.RecencyDecayRate, "COGMEM_RECENCY_DECAY_RATE")
	setInt(&cfg.Memory.SummaryInterval, "COGMEM_SUMMARY_INTERVAL")
	setInt(&cfg.Memory.SummaryMaxTurns, "COGMEM_SUMMARY_MAX_TURNS")
	setInt64(&cfg.Memory.EmbeddingCacheSize, "COGMEM_EMBEDDING_CACHE_SIZE")
	setBool(&cfg.Memory.WatchIndexDir, "COGMEM_WATCH_INDEX_DIR")

	setString(&cfg.Security.APIToken, "COGMEM_API_TOKEN")
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}

func setInt64(dst *int64, key string) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if value, ok := os.LookupEnv(key); ok {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			*dst = true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			*dst = false
		}
	}
}
