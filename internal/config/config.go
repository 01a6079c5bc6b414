// Package config provides unified configuration loading for the Answer Engine.
// Supports YAML files, a local .env file, and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Answer Engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Completion    CompletionConfig    `yaml:"completion"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Store               string        `yaml:"store"` // sql, redis or memory
	Retention           time.Duration `yaml:"retention"`
	UnverifiedRetention time.Duration `yaml:"unverified_retention"`
	FuzzyThreshold      float64       `yaml:"fuzzy_threshold"`
	FuzzyPoolSize       int           `yaml:"fuzzy_pool_size"`
	ServeUnverified     bool          `yaml:"serve_unverified"`
	Redis               RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // openrouter, openai, ollama or hashing
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CompletionConfig holds generative completion provider settings.
type CompletionConfig struct {
	Provider    string        `yaml:"provider"` // openai, ollama or none
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// RetrievalConfig holds resolution tier settings.
type RetrievalConfig struct {
	ChunkSize             int     `yaml:"chunk_size"`
	ChunkOverlap          int     `yaml:"chunk_overlap"`
	MaxChunksPerSource    int     `yaml:"max_chunks_per_source"`
	MaxInputChars         int     `yaml:"max_input_chars"`
	CandidateLimit        int     `yaml:"candidate_limit"`
	ResultLimit           int     `yaml:"result_limit"`
	DocumentMinSimilarity float64 `yaml:"document_min_similarity"`
	WebsiteMinSimilarity  float64 `yaml:"website_min_similarity"`
	BoostFactor           float64 `yaml:"boost_factor"`
	KnowledgeMinScore     float64 `yaml:"knowledge_min_score"`
	KnowledgePoolSize     int     `yaml:"knowledge_pool_size"`
	CatalogMaxResults     int     `yaml:"catalog_max_results"`
}

// IngestConfig holds background indexing settings.
type IngestConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file next to the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Database.Driver == "sqlite" {
			cfg.Database.SQLite.Path = ResolveRelativePath(path, cfg.Database.SQLite.Path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/answer-engine.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Store:               "sql",
			Retention:           90 * 24 * time.Hour,
			UnverifiedRetention: 7 * 24 * time.Hour,
			FuzzyThreshold:      0.80,
			FuzzyPoolSize:       200,
			ServeUnverified:     true,
			Redis: RedisConfig{
				Addr:      "localhost:6380",
				PoolSize:  10,
				KeyPrefix: "ae:",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "openrouter",
			Model:     "openai/text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 32,
			Timeout:   15 * time.Second,
		},
		Completion: CompletionConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     30 * time.Second,
			Temperature: 0.2,
			MaxTokens:   400,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:             1100,
			ChunkOverlap:          180,
			MaxChunksPerSource:    40,
			MaxInputChars:         60000,
			CandidateLimit:        500,
			ResultLimit:           5,
			DocumentMinSimilarity: 0.30,
			WebsiteMinSimilarity:  0.35,
			BoostFactor:           1.3,
			KnowledgeMinScore:     0.65,
			KnowledgePoolSize:     30,
			CatalogMaxResults:     5,
		},
		Ingest: IngestConfig{
			Workers:   2,
			QueueSize: 64,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			ServiceName:    "answer-engine",
			MetricsEnabled: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is required")
	}

	switch c.Cache.Store {
	case "sql", "redis", "memory":
	default:
		return fmt.Errorf("invalid cache store: %s", c.Cache.Store)
	}

	if c.Cache.FuzzyThreshold <= 0 || c.Cache.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be in (0, 1]")
	}

	switch c.Embedding.Provider {
	case "openrouter", "openai", "ollama", "hashing":
	default:
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	switch c.Completion.Provider {
	case "openai", "ollama", "none":
	default:
		return fmt.Errorf("invalid completion provider: %s", c.Completion.Provider)
	}

	if c.Retrieval.ChunkSize < 100 {
		return fmt.Errorf("chunk_size must be at least 100")
	}

	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("chunk_overlap must be between 0 and chunk_size")
	}

	if c.Retrieval.KnowledgeMinScore <= 0 || c.Retrieval.KnowledgeMinScore > 1 {
		return fmt.Errorf("knowledge_min_score must be in (0, 1]")
	}

	if c.Retrieval.ResultLimit < 1 || c.Retrieval.ResultLimit > 20 {
		return fmt.Errorf("result_limit must be between 1 and 20")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANSWER_ENGINE_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("ANSWER_ENGINE_COMPLETION_PROVIDER"); v != "" {
		cfg.Completion.Provider = v
	}

	if v := os.Getenv("ANSWER_ENGINE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Store = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("ANSWER_ENGINE_CACHE_STORE"); v != "" {
		cfg.Cache.Store = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && cfg.Embedding.Provider == "openrouter" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Completion.Provider == "openai" && cfg.Completion.APIKey == "" {
			cfg.Completion.APIKey = v
		}
	}

	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if cfg.Embedding.Provider == "ollama" {
			cfg.Embedding.BaseURL = v
		}
		if cfg.Completion.Provider == "ollama" {
			cfg.Completion.BaseURL = v
		}
	}

	if v := os.Getenv("COMPLETION_MODEL"); v != "" {
		cfg.Completion.Model = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || targetPath == ":memory:" || filepath.IsAbs(targetPath) || strings.HasPrefix(targetPath, "file:") {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
