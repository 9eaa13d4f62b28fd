// Package keyword provides the lexical half of hybrid retrieval: a Bleve
// full-text index over document content and metadata.
package keyword

import "context"

// Options are optional search parameters. Nil means defaults.
type Options struct {
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// Index defines keyword search operations over the retrieval corpus.
type Index interface {
	Index(ctx context.Context, id, content string, metadata map[string]interface{}) error
	IndexBatch(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, limit int, opts *Options) ([]Result, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Document is one indexable unit.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
}

// Result is a single keyword search hit. Scores are Bleve's tf-idf scores,
// unnormalized; callers normalize before fusing with vector scores.
type Result struct {
	ID    string
	Score float64
}
