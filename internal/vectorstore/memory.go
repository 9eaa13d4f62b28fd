package vectorstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyloop/retrieval/internal/models"
	"github.com/studyloop/retrieval/internal/monitor"
	"github.com/studyloop/retrieval/pkg/utils"
)

// MemoryStore is an embedded brute-force store. Suitable for tests and small
// corpora; it honors the full Store contract including filters and metric
// normalization.
type MemoryStore struct {
	base

	mu   sync.RWMutex
	docs map[string]models.VectorDocument
}

// NewMemoryStore creates an uninitialized memory store.
func NewMemoryStore(logger *zap.Logger, mon *monitor.PerformanceMonitor, allowDestructive bool) *MemoryStore {
	return &MemoryStore{
		base: newBase("memory", logger, mon, allowDestructive),
		docs: make(map[string]models.VectorDocument),
	}
}

// Initialize validates the index config and prepares the store.
func (s *MemoryStore) Initialize(ctx context.Context, cfg models.IndexConfig) (err error) {
	start := time.Now()
	defer func() { s.track("initialize", start, err) }()

	if err = cfg.Validate(); err != nil {
		return validationf("%v", err)
	}
	s.mu.Lock()
	s.docs = make(map[string]models.VectorDocument)
	s.mu.Unlock()
	s.markInitialized(cfg)
	s.logger.Info("memory store initialized",
		zap.Int("dimensions", cfg.Dimensions),
		zap.String("metric", string(cfg.Metric)))
	return nil
}

// Upsert inserts or replaces one document. Documents without an id are
// assigned a random one.
func (s *MemoryStore) Upsert(ctx context.Context, doc models.VectorDocument) (err error) {
	start := time.Now()
	defer func() { s.track("upsert", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return err
	}
	if err = s.validateVector(doc.Vector); err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	stored := models.VectorDocument{
		ID:       doc.ID,
		Vector:   append([]float32(nil), doc.Vector...),
		Metadata: doc.Metadata,
		Content:  doc.Content,
	}
	s.mu.Lock()
	s.docs[doc.ID] = stored
	s.mu.Unlock()
	return nil
}

// UpsertBatch writes documents in chunks, reporting per-item validation
// failures without aborting the rest.
func (s *MemoryStore) UpsertBatch(ctx context.Context, docs []models.VectorDocument) (result models.BatchResult, err error) {
	start := time.Now()
	defer func() { s.track("upsert_batch", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return result, err
	}
	for batchIdx, chunk := range chunkDocuments(docs, DefaultBatchSize) {
		for _, doc := range chunk {
			if upsertErr := s.Upsert(ctx, doc); upsertErr != nil {
				result.Failed++
				result.Errors = append(result.Errors, models.BatchError{
					ID:    doc.ID,
					Batch: batchIdx,
					Err:   upsertErr.Error(),
				})
				continue
			}
			result.Successful++
		}
	}
	return result, nil
}

// Search scans all vectors, scores them under the configured metric, applies
// filter and threshold, and returns the topK best.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, opts models.SearchOptions) (results []models.SearchResult, err error) {
	start := time.Now()
	defer func() { s.track("search", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return nil, err
	}
	if err = s.validateVector(vector); err != nil {
		return nil, err
	}
	opts.Normalize()
	predicates, err := ParseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	scored := make([]models.SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		if len(predicates) > 0 && !MatchesAll(predicates, doc.Metadata) {
			continue
		}
		score := s.similarity(vector, doc.Vector)
		if score < opts.Threshold {
			continue
		}
		result := models.SearchResult{ID: doc.ID, Score: score, Content: doc.Content}
		if opts.IncludeMetadata {
			result.Metadata = doc.Metadata
		}
		if opts.IncludeVector {
			result.Vector = append([]float32(nil), doc.Vector...)
		}
		scored = append(scored, result)
	}
	s.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}
	return scored, nil
}

// SearchMulti fans Search out per query vector.
func (s *MemoryStore) SearchMulti(ctx context.Context, vectors [][]float32, opts models.SearchOptions) ([][]models.SearchResult, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	return searchMulti(ctx, s, vectors, opts)
}

// similarity normalizes the configured metric to higher-is-better.
func (s *MemoryStore) similarity(query, candidate []float32) float64 {
	switch s.config.Metric {
	case models.MetricEuclidean:
		return 1.0 / (1.0 + utils.EuclideanDistance(query, candidate))
	case models.MetricDotProduct:
		return utils.DotProduct(query, candidate)
	default:
		return utils.CosineSimilarity(query, candidate)
	}
}

// Delete removes documents by id, reporting ids that were absent.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) (result models.BatchResult, err error) {
	start := time.Now()
	defer func() { s.track("delete", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return result, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.docs[id]; !ok {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{ID: id, Err: "not found"})
			continue
		}
		delete(s.docs, id)
		result.Successful++
	}
	return result, nil
}

// DeleteByFilter removes documents whose metadata matches the filter.
func (s *MemoryStore) DeleteByFilter(ctx context.Context, filter map[string]interface{}) (count int64, err error) {
	start := time.Now()
	defer func() { s.track("delete_by_filter", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return 0, err
	}
	predicates, err := ParseFilter(filter)
	if err != nil {
		return 0, err
	}
	if len(predicates) == 0 {
		return 0, validationf("delete by filter requires a non-empty filter")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, doc := range s.docs {
		if MatchesAll(predicates, doc.Metadata) {
			delete(s.docs, id)
			count++
		}
	}
	return count, nil
}

// Get fetches documents by id, skipping missing ids.
func (s *MemoryStore) Get(ctx context.Context, ids []string) (docs []models.VectorDocument, err error) {
	start := time.Now()
	defer func() { s.track("get", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			docs = append(docs, models.VectorDocument{
				ID:       doc.ID,
				Vector:   append([]float32(nil), doc.Vector...),
				Metadata: doc.Metadata,
				Content:  doc.Content,
			})
		}
	}
	return docs, nil
}

// UpdateMetadata replaces a document's metadata in place.
func (s *MemoryStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) (err error) {
	start := time.Now()
	defer func() { s.track("update_metadata", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return validationf("document %q not found", id)
	}
	doc.Metadata = metadata
	s.docs[id] = doc
	return nil
}

// Stats reports the index shape.
func (s *MemoryStore) Stats(ctx context.Context) (models.StoreStats, error) {
	if err := s.requireInitialized(); err != nil {
		return models.StoreStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.StoreStats{
		TotalVectors: int64(len(s.docs)),
		Dimensions:   s.config.Dimensions,
		Capabilities: []string{"upsert", "search", "filter", "delete", "metadata"},
	}, nil
}

// HealthCheck always succeeds once initialized.
func (s *MemoryStore) HealthCheck(ctx context.Context) (bool, error) {
	if err := s.requireInitialized(); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every document. Refused unless destructive ops are allowed.
func (s *MemoryStore) Clear(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.track("clear", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return err
	}
	if !s.allowDestructive {
		return ErrDestructiveDisabled
	}
	s.mu.Lock()
	s.docs = make(map[string]models.VectorDocument)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
