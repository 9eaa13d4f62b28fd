package models

// SearchResult is a single hit from a vector store. Score is similarity under
// the configured metric, normalized so that higher is always better.
type SearchResult struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Vector   []float32              `json:"vector,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Content  string                 `json:"content,omitempty"`
}

// HybridSearchResult extends SearchResult with the per-path scores the fusion
// engine combined. Results are sorted descending by FusedScore before being
// returned; RankPosition is 1-based and contiguous.
type HybridSearchResult struct {
	SearchResult
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	FusedScore   float64 `json:"fused_score"`
	RankPosition int     `json:"rank_position"`
}

// BatchError describes a single failed item within a batch operation.
type BatchError struct {
	ID    string `json:"id,omitempty"`
	Batch int    `json:"batch"`
	Err   string `json:"error"`
}

// BatchResult reports partial success of a batch operation. A failed batch
// never aborts the remaining batches.
type BatchResult struct {
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Errors     []BatchError `json:"errors,omitempty"`
}

// StoreStats describes an index's current shape and what the backend supports.
type StoreStats struct {
	TotalVectors int64    `json:"total_vectors"`
	Dimensions   int      `json:"dimensions"`
	IndexSize    int64    `json:"index_size,omitempty"`
	Capabilities []string `json:"capabilities"`
}
