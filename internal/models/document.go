// Package models defines the shared data model for the retrieval core:
// vector documents, index configuration, search options, and results.
package models

import "fmt"

// Metric is the similarity metric a vector index is built with.
type Metric string

const (
	// MetricCosine ranks by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricEuclidean ranks by L2 distance (normalized to similarity in results).
	MetricEuclidean Metric = "euclidean"
	// MetricDotProduct ranks by inner product.
	MetricDotProduct Metric = "dotproduct"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
		return true
	}
	return false
}

// VectorDocument is a single indexed passage: a stable id, its embedding,
// optional metadata, and optionally the raw content it was derived from.
// The vector length must equal the index's configured dimensionality.
type VectorDocument struct {
	ID       string                 `json:"id"`
	Vector   []float32              `json:"vector"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Content  string                 `json:"content,omitempty"`
}

// IndexConfig fixes the dimensionality and similarity metric of an index.
// Set at initialization time; all subsequent vectors are validated against it.
type IndexConfig struct {
	Dimensions int    `json:"dimensions"`
	Metric     Metric `json:"metric"`
}

// Validate checks the config for usable values and applies the default metric.
func (c *IndexConfig) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", c.Dimensions)
	}
	if c.Metric == "" {
		c.Metric = MetricCosine
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	return nil
}
