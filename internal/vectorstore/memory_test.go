package vectorstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/studyloop/retrieval/internal/models"
)

func newTestStore(t *testing.T, dims int) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(nil, nil, true)
	err := store.Initialize(context.Background(), models.IndexConfig{Dimensions: dims})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return store
}

func TestOperationsBeforeInitialize(t *testing.T) {
	store := NewMemoryStore(nil, nil, false)
	ctx := context.Background()

	if err := store.Upsert(ctx, models.VectorDocument{Vector: []float32{1}}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Upsert before Initialize: got %v, want ErrNotInitialized", err)
	}
	if _, err := store.Search(ctx, []float32{1}, models.SearchOptions{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Search before Initialize: got %v, want ErrNotInitialized", err)
	}
}

func TestUpsertGetRoundTrip(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	doc := models.VectorDocument{
		ID:       "doc-1",
		Vector:   []float32{0.1, 0.2, 0.3},
		Metadata: map[string]interface{}{"category": "tutorial"},
		Content:  "getting started",
	}
	if err := store.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	docs, err := store.Get(ctx, []string{"doc-1", "missing"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Content != "getting started" {
		t.Errorf("content mismatch: %q", docs[0].Content)
	}
	if docs[0].Metadata["category"] != "tutorial" {
		t.Errorf("metadata mismatch: %v", docs[0].Metadata)
	}
}

func TestUpsertAssignsID(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	if err := store.Upsert(ctx, models.VectorDocument{Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalVectors != 1 {
		t.Errorf("expected 1 vector, got %d", stats.TotalVectors)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	err := store.Upsert(ctx, models.VectorDocument{ID: "bad", Vector: []float32{1, 2}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	err = store.Upsert(ctx, models.VectorDocument{ID: "empty"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for empty vector, got %v", err)
	}
}

func TestSearchRanking(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	docs := []models.VectorDocument{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0}},
	}
	result, err := store.UpsertBatch(ctx, docs)
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if result.Successful != 2 || result.Failed != 0 {
		t.Fatalf("unexpected batch result: %+v", result)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, models.SearchOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("expected doc a first, got %s", results[0].ID)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("expected score 1.0, got %f", results[0].Score)
	}
}

func TestSearchThresholdAndTopK(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	docs := []models.VectorDocument{
		{ID: "exact", Vector: []float32{1, 0}},
		{ID: "close", Vector: []float32{0.9, 0.1}},
		{ID: "orthogonal", Vector: []float32{0, 1}},
	}
	if _, err := store.UpsertBatch(ctx, docs); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0}, models.SearchOptions{TopK: 10, Threshold: 0.5})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted descending at %d", i)
		}
	}

	results, err = store.Search(ctx, []float32{1, 0}, models.SearchOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("topK not honored: got %d results", len(results))
	}
}

func TestSearchWithFilter(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	docs := []models.VectorDocument{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]interface{}{"lang": "go", "year": 2024}},
		{ID: "b", Vector: []float32{1, 0}, Metadata: map[string]interface{}{"lang": "rust", "year": 2023}},
		{ID: "c", Vector: []float32{1, 0}, Metadata: map[string]interface{}{"lang": "go", "year": 2021}},
	}
	if _, err := store.UpsertBatch(ctx, docs); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0}, models.SearchOptions{
		TopK: 10,
		Filter: map[string]interface{}{
			"lang": "go",
			"year": map[string]interface{}{"$gte": 2022},
		},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("filter selected wrong documents: %+v", results)
	}
}

func TestSearchIncludeFlags(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	doc := models.VectorDocument{
		ID:       "a",
		Vector:   []float32{1, 0},
		Metadata: map[string]interface{}{"k": "v"},
	}
	if err := store.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0}, models.SearchOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].Metadata != nil || results[0].Vector != nil {
		t.Errorf("metadata and vector should be omitted by default: %+v", results[0])
	}

	results, err = store.Search(ctx, []float32{1, 0}, models.SearchOptions{
		TopK: 1, IncludeMetadata: true, IncludeVector: true,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].Metadata == nil || results[0].Vector == nil {
		t.Errorf("include flags not honored: %+v", results[0])
	}
}

func TestSearchMultiPreservesOrder(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	docs := []models.VectorDocument{
		{ID: "x", Vector: []float32{1, 0}},
		{ID: "y", Vector: []float32{0, 1}},
	}
	if _, err := store.UpsertBatch(ctx, docs); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	queries := [][]float32{{1, 0}, {0, 1}, {1, 0}}
	all, err := store.SearchMulti(ctx, queries, models.SearchOptions{TopK: 1})
	if err != nil {
		t.Fatalf("SearchMulti failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 result sets, got %d", len(all))
	}
	want := []string{"x", "y", "x"}
	for i, results := range all {
		if len(results) != 1 || results[0].ID != want[i] {
			t.Errorf("query %d: got %+v, want top %s", i, results, want[i])
		}
	}
}

func TestDeleteReportsMissing(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	if err := store.Upsert(ctx, models.VectorDocument{ID: "keep", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	result, err := store.Delete(ctx, []string{"keep", "gone"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if result.Successful != 1 || result.Failed != 1 {
		t.Errorf("unexpected delete result: %+v", result)
	}
}

func TestDeleteByFilter(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	docs := []models.VectorDocument{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]interface{}{"stale": true}},
		{ID: "b", Vector: []float32{0, 1}, Metadata: map[string]interface{}{"stale": false}},
	}
	if _, err := store.UpsertBatch(ctx, docs); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	if _, err := store.DeleteByFilter(ctx, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("empty filter should be rejected, got %v", err)
	}

	count, err := store.DeleteByFilter(ctx, map[string]interface{}{"stale": true})
	if err != nil {
		t.Fatalf("DeleteByFilter failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 deleted, got %d", count)
	}
}

func TestUpdateMetadata(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	if err := store.Upsert(ctx, models.VectorDocument{ID: "a", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.UpdateMetadata(ctx, "a", map[string]interface{}{"reviewed": true}); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}
	if err := store.UpdateMetadata(ctx, "nope", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for missing id, got %v", err)
	}

	docs, err := store.Get(ctx, []string{"a"})
	if err != nil || len(docs) != 1 {
		t.Fatalf("Get failed: %v", err)
	}
	if docs[0].Metadata["reviewed"] != true {
		t.Errorf("metadata not updated: %v", docs[0].Metadata)
	}
}

func TestClearRequiresDestructive(t *testing.T) {
	guarded := NewMemoryStore(nil, nil, false)
	ctx := context.Background()
	if err := guarded.Initialize(ctx, models.IndexConfig{Dimensions: 2}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := guarded.Clear(ctx); !errors.Is(err, ErrDestructiveDisabled) {
		t.Errorf("expected ErrDestructiveDisabled, got %v", err)
	}

	open := newTestStore(t, 2)
	if err := open.Upsert(ctx, models.VectorDocument{ID: "a", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := open.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	stats, _ := open.Stats(ctx)
	if stats.TotalVectors != 0 {
		t.Errorf("expected empty store after Clear, got %d", stats.TotalVectors)
	}
}

func TestUpsertBatchPartialFailure(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	docs := []models.VectorDocument{
		{ID: "ok", Vector: []float32{1, 0}},
		{ID: "bad", Vector: []float32{1, 0, 0}},
		{ID: "ok2", Vector: []float32{0, 1}},
	}
	result, err := store.UpsertBatch(ctx, docs)
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if result.Successful != 2 || result.Failed != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].ID != "bad" {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}
}
