package keyword

import (
	"context"
	"testing"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewMemoryIndex()
	if err != nil {
		t.Fatalf("NewMemoryIndex failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "go-intro", Content: "an introduction to goroutines and channels"},
		{ID: "rust-intro", Content: "ownership and borrowing in rust"},
		{ID: "go-testing", Content: "table driven tests with goroutines"},
	}
	if err := idx.IndexBatch(ctx, docs); err != nil {
		t.Fatalf("IndexBatch failed: %v", err)
	}

	results, err := idx.Search(ctx, "goroutines", 10, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}
	for _, r := range results {
		if r.ID == "rust-intro" {
			t.Errorf("unexpected hit: %s", r.ID)
		}
		if r.Score <= 0 {
			t.Errorf("non-positive score for %s", r.ID)
		}
	}
}

func TestSearchMetadataAttributes(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	err := idx.Index(ctx, "doc-1", "plain body text", map[string]interface{}{
		"category": "observability",
		"tags":     []string{"tracing", "metrics"},
	})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	results, err := idx.Search(ctx, "tracing", 10, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "doc-1" {
		t.Errorf("metadata attributes not searchable: %+v", results)
	}
}

func TestFuzzySearchToleratesTypos(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, "doc-1", "kubernetes deployment guide", nil); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	results, err := idx.Search(ctx, "kubernets", 10, &Options{FuzzyEnabled: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("fuzzy search missed a near match: %+v", results)
	}

	results, err = idx.Search(ctx, "kubernets", 10, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("exact search should not match a typo: %+v", results)
	}
}

func TestDeleteAndDocCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, "a", "first document", nil); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if err := idx.Index(ctx, "b", "second document", nil); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	count, err := idx.DocCount()
	if err != nil || count != 2 {
		t.Fatalf("DocCount = %d, %v; want 2", count, err)
	}

	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	count, err = idx.DocCount()
	if err != nil || count != 1 {
		t.Errorf("DocCount after delete = %d, %v; want 1", count, err)
	}
}

func TestIndexRequiresID(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Index(context.Background(), "", "content", nil); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestSearchLimit(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := idx.Index(ctx, id, "shared term corpus", nil); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
	}
	results, err := idx.Search(ctx, "corpus", 2, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("limit not honored: got %d hits", len(results))
	}
}
