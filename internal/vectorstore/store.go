package vectorstore

import (
	"context"

	"github.com/studyloop/retrieval/internal/models"
)

// Store is the contract every vector index backend implements. All blocking
// operations take a context; timeouts and cancellation are the caller's
// responsibility. Operations invoked before Initialize fail with
// ErrNotInitialized; vectors are validated against the configured
// dimensionality on every write and search.
type Store interface {
	// Initialize prepares the backend for the given index shape. Must be
	// called once before any other operation.
	Initialize(ctx context.Context, cfg models.IndexConfig) error

	// Upsert inserts or replaces a single document.
	Upsert(ctx context.Context, doc models.VectorDocument) error

	// UpsertBatch writes documents in fixed-size chunks, reporting partial
	// failure per chunk. A failed chunk never aborts the remaining chunks.
	UpsertBatch(ctx context.Context, docs []models.VectorDocument) (models.BatchResult, error)

	// Search returns up to opts.TopK results ordered by similarity, filtered
	// by opts.Threshold and opts.Filter. Scores are normalized so higher is
	// always better, regardless of metric.
	Search(ctx context.Context, vector []float32, opts models.SearchOptions) ([]models.SearchResult, error)

	// SearchMulti fans a search out per query vector, preserving input order.
	SearchMulti(ctx context.Context, vectors [][]float32, opts models.SearchOptions) ([][]models.SearchResult, error)

	// Delete removes documents by id.
	Delete(ctx context.Context, ids []string) (models.BatchResult, error)

	// DeleteByFilter removes documents whose metadata matches the filter and
	// returns the number removed.
	DeleteByFilter(ctx context.Context, filter map[string]interface{}) (int64, error)

	// Get fetches documents by id. Missing ids are skipped, not errors.
	Get(ctx context.Context, ids []string) ([]models.VectorDocument, error)

	// UpdateMetadata replaces a document's metadata in place.
	UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) error

	// Stats describes the index's current shape and capabilities.
	Stats(ctx context.Context) (models.StoreStats, error)

	// HealthCheck probes the backend.
	HealthCheck(ctx context.Context) (bool, error)

	// Clear removes every document. Refused unless destructive operations
	// were explicitly allowed at construction.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// DefaultBatchSize is the chunk size for batch upserts.
const DefaultBatchSize = 100

// searchMultiConcurrency bounds SearchMulti fan-out.
const searchMultiConcurrency = 4
