// Package config provides configuration loading for the retrieval service.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/studyloop/retrieval/internal/cache"
	"github.com/studyloop/retrieval/internal/models"
	"github.com/studyloop/retrieval/internal/monitor"
	"github.com/studyloop/retrieval/internal/quantization"
	"github.com/studyloop/retrieval/internal/search"
)

// Config holds all configuration for the retrieval layer.
type Config struct {
	Debug        bool                `yaml:"debug"`
	Store        StoreConfig         `yaml:"store"`
	Keyword      KeywordConfig       `yaml:"keyword"`
	Cache        CacheConfig         `yaml:"cache"`
	Search       search.Config       `yaml:"search"`
	Quantization quantization.Config `yaml:"quantization"`
	Monitor      monitor.Config      `yaml:"monitor"`
}

// StoreConfig selects and shapes the vector store backend.
type StoreConfig struct {
	// Provider is one of "memory", "pgvector", "qdrant", "pinecone".
	Provider string `yaml:"provider"`
	// DSN is the connection URL for networked providers.
	DSN string `yaml:"dsn"`
	// Table overrides the pgvector table name.
	Table string `yaml:"table"`
	// Dimensions is the index vector width. Required.
	Dimensions int `yaml:"dimensions"`
	// Metric is cosine, euclidean, or dotproduct.
	Metric models.Metric `yaml:"metric"`
	// AllowDestructive enables Clear on the store and cache.
	AllowDestructive bool `yaml:"allow_destructive"`
}

// KeywordConfig shapes the lexical index.
type KeywordConfig struct {
	// IndexPath locates the Bleve index on disk. Empty means in-memory.
	IndexPath string `yaml:"index_path"`
}

// CacheConfig shapes the result cache.
type CacheConfig struct {
	// Enabled turns the result cache on.
	Enabled bool `yaml:"enabled"`
	// RedisURL backs the cache with Redis. Empty means in-process.
	RedisURL     string `yaml:"redis_url"`
	cache.Config `yaml:",inline"`
}

// Load reads and parses the config file at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings defaults cannot fill.
func (c *Config) Validate() error {
	if c.Store.Dimensions <= 0 {
		return fmt.Errorf("store.dimensions must be positive")
	}
	if !c.Store.Metric.Valid() {
		return fmt.Errorf("store.metric %q is not supported", c.Store.Metric)
	}
	if (c.Store.Provider == "pgvector") && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the pgvector provider")
	}
	if !c.Search.Hybrid.FusionMethod.Valid() {
		return fmt.Errorf("search.hybrid.fusion_method %q is not supported", c.Search.Hybrid.FusionMethod)
	}
	weightSum := c.Search.Hybrid.VectorWeight + c.Search.Hybrid.KeywordWeight
	if weightSum <= 0 {
		return fmt.Errorf("search.hybrid weights must sum to a positive value")
	}
	return nil
}
