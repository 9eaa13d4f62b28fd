package config

import "github.com/studyloop/retrieval/internal/models"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "memory"
	}
	if cfg.Store.Metric == "" {
		cfg.Store.Metric = models.MetricCosine
	}
	if cfg.Store.Table == "" {
		cfg.Store.Table = "vector_documents"
	}
	cfg.Cache.Config.ApplyDefaults()
	cfg.Search.ApplyDefaults()
	cfg.Quantization.ApplyDefaults()
	cfg.Monitor.ApplyDefaults()
}
