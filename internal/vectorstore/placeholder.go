package vectorstore

import (
	"context"
	"fmt"

	"github.com/studyloop/retrieval/internal/models"
)

// placeholderStore reserves a provider name whose backend is not built yet.
// Every operation fails loudly with ErrNotImplemented so a misconfigured
// deployment is caught at the first call, not by silently degraded results.
type placeholderStore struct {
	provider string
}

// NewQdrantStore reserves the qdrant provider slot.
func NewQdrantStore() Store {
	return &placeholderStore{provider: "qdrant"}
}

// NewPineconeStore reserves the pinecone provider slot.
func NewPineconeStore() Store {
	return &placeholderStore{provider: "pinecone"}
}

func (p *placeholderStore) err(op string) error {
	return &ProviderError{
		Provider:  p.provider,
		Operation: op,
		Err:       fmt.Errorf("%w: %s backend is not available in this build", ErrNotImplemented, p.provider),
	}
}

func (p *placeholderStore) Initialize(ctx context.Context, cfg models.IndexConfig) error {
	return p.err("initialize")
}

func (p *placeholderStore) Upsert(ctx context.Context, doc models.VectorDocument) error {
	return p.err("upsert")
}

func (p *placeholderStore) UpsertBatch(ctx context.Context, docs []models.VectorDocument) (models.BatchResult, error) {
	return models.BatchResult{}, p.err("upsert_batch")
}

func (p *placeholderStore) Search(ctx context.Context, vector []float32, opts models.SearchOptions) ([]models.SearchResult, error) {
	return nil, p.err("search")
}

func (p *placeholderStore) SearchMulti(ctx context.Context, vectors [][]float32, opts models.SearchOptions) ([][]models.SearchResult, error) {
	return nil, p.err("search_multi")
}

func (p *placeholderStore) Delete(ctx context.Context, ids []string) (models.BatchResult, error) {
	return models.BatchResult{}, p.err("delete")
}

func (p *placeholderStore) DeleteByFilter(ctx context.Context, filter map[string]interface{}) (int64, error) {
	return 0, p.err("delete_by_filter")
}

func (p *placeholderStore) Get(ctx context.Context, ids []string) ([]models.VectorDocument, error) {
	return nil, p.err("get")
}

func (p *placeholderStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	return p.err("update_metadata")
}

func (p *placeholderStore) Stats(ctx context.Context) (models.StoreStats, error) {
	return models.StoreStats{}, p.err("stats")
}

func (p *placeholderStore) HealthCheck(ctx context.Context) (bool, error) {
	return false, p.err("health_check")
}

func (p *placeholderStore) Clear(ctx context.Context) error {
	return p.err("clear")
}

func (p *placeholderStore) Close() error {
	return nil
}
