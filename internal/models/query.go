package models

// SearchOptions are per-query knobs. Never persisted.
type SearchOptions struct {
	TopK            int                    `json:"top_k,omitempty"`
	Threshold       float64                `json:"threshold,omitempty"`
	Filter          map[string]interface{} `json:"filter,omitempty"`
	IncludeMetadata bool                   `json:"include_metadata,omitempty"`
	IncludeVector   bool                   `json:"include_vector,omitempty"`
}

// Normalize applies defaults in place and returns the options for chaining.
func (o *SearchOptions) Normalize() *SearchOptions {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	return o
}

// FusionMethod selects how vector and keyword scores are combined.
type FusionMethod string

const (
	// FusionRRF is reciprocal rank fusion: rank-based, score-magnitude agnostic.
	FusionRRF FusionMethod = "rrf"
	// FusionLinear is a weighted sum of the two scores.
	FusionLinear FusionMethod = "linear"
	// FusionHarmonic is a weighted harmonic mean when both scores are positive.
	FusionHarmonic FusionMethod = "harmonic"
	// FusionConvex re-derives weights per result from each score's share of confidence.
	FusionConvex FusionMethod = "convex"
)

// Valid reports whether f is a known fusion method.
func (f FusionMethod) Valid() bool {
	switch f {
	case FusionRRF, FusionLinear, FusionHarmonic, FusionConvex:
		return true
	}
	return false
}

// HybridSearchConfig controls the fusion engine. A base config is process-wide;
// query-adaptive overrides mutate a per-request copy. Weights need not sum to 1
// after adaptation.
type HybridSearchConfig struct {
	VectorWeight     float64      `json:"vector_weight" yaml:"vector_weight"`
	KeywordWeight    float64      `json:"keyword_weight" yaml:"keyword_weight"`
	FusionMethod     FusionMethod `json:"fusion_method" yaml:"fusion_method"`
	RerankingEnabled bool         `json:"reranking_enabled" yaml:"reranking_enabled"`
	KeywordExpansion bool         `json:"keyword_expansion" yaml:"keyword_expansion"`
	SemanticDrift    float64      `json:"semantic_drift" yaml:"semantic_drift"`
}

// DefaultHybridSearchConfig returns the process-wide baseline.
func DefaultHybridSearchConfig() HybridSearchConfig {
	return HybridSearchConfig{
		VectorWeight:     0.6,
		KeywordWeight:    0.4,
		FusionMethod:     FusionRRF,
		RerankingEnabled: true,
		KeywordExpansion: false,
		SemanticDrift:    0.1,
	}
}

// QueryType classifies a query by retrieval intent.
type QueryType string

const (
	// QueryTypeSemantic favors vector search (natural-language queries).
	QueryTypeSemantic QueryType = "semantic"
	// QueryTypeKeyword favors lexical search (boolean/field/quoted queries).
	QueryTypeKeyword QueryType = "keyword"
	// QueryTypeHybrid sits between the two.
	QueryTypeHybrid QueryType = "hybrid"
)

// SuggestedWeights are the analyzer's recommended fusion weights.
type SuggestedWeights struct {
	Vector  float64 `json:"vector"`
	Keyword float64 `json:"keyword"`
}

// QueryAnalysis is derived per query, never stored.
type QueryAnalysis struct {
	HasKeywords        bool             `json:"has_keywords"`
	HasNaturalLanguage bool             `json:"has_natural_language"`
	KeywordDensity     float64          `json:"keyword_density"`
	QueryType          QueryType        `json:"query_type"`
	SuggestedWeights   SuggestedWeights `json:"suggested_weights"`
	TokenCount         int              `json:"token_count"`
}
