package cache

import (
	"context"
	"testing"
	"time"

	"github.com/studyloop/retrieval/internal/models"
)

func newTestCache(t *testing.T, cfg Config) *ResultCache {
	t.Helper()
	return New(NewMemoryKV(), cfg, nil)
}

func someResults(ids ...string) []models.SearchResult {
	out := make([]models.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = models.SearchResult{ID: id, Score: 0.9}
	}
	return out
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()
	vector := []float32{0.1, 0.2, 0.3}

	if _, ok := c.Get(ctx, vector, 10, 0.5, nil); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(ctx, vector, 10, 0.5, nil, someResults("a", "b"))
	results, ok := c.Get(ctx, vector, 10, 0.5, nil)
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if len(results) != 2 || results[0].ID != "a" {
		t.Errorf("unexpected results: %+v", results)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestKeyRoundsVectorComponents(t *testing.T) {
	c := newTestCache(t, Config{})
	// differ past the 4th decimal place
	a := c.Key([]float32{0.12341}, 10, 0.5, nil)
	b := c.Key([]float32{0.123412}, 10, 0.5, nil)
	if a != b {
		t.Error("keys should match when vectors differ below rounding precision")
	}

	differs := c.Key([]float32{0.1235}, 10, 0.5, nil)
	if a == differs {
		t.Error("keys should differ when vectors differ above rounding precision")
	}
}

func TestKeyIncludesQueryShape(t *testing.T) {
	c := newTestCache(t, Config{})
	vector := []float32{0.5}
	base := c.Key(vector, 10, 0.5, nil)

	if c.Key(vector, 20, 0.5, nil) == base {
		t.Error("topK should affect the key")
	}
	if c.Key(vector, 10, 0.7, nil) == base {
		t.Error("threshold should affect the key")
	}
	if c.Key(vector, 10, 0.5, map[string]interface{}{"lang": "go"}) == base {
		t.Error("filter should affect the key")
	}
}

func TestSetRefusesEmptyAndOversized(t *testing.T) {
	c := newTestCache(t, Config{MaxResults: 2})
	ctx := context.Background()
	vector := []float32{1}

	c.Set(ctx, vector, 10, 0, nil, nil)
	if _, ok := c.Get(ctx, vector, 10, 0, nil); ok {
		t.Error("empty result set should not be cached")
	}

	c.Set(ctx, vector, 10, 0, nil, someResults("a", "b", "c"))
	if _, ok := c.Get(ctx, vector, 10, 0, nil); ok {
		t.Error("oversized result set should not be cached")
	}
	if c.Stats().Rejected != 2 {
		t.Errorf("expected 2 rejections, got %d", c.Stats().Rejected)
	}
}

func TestAdaptiveTTLScalesWithPopularity(t *testing.T) {
	c := newTestCache(t, Config{
		BaseTTL:             time.Minute,
		AdaptiveTTL:         true,
		PopularityThreshold: 10,
	})

	if got := c.ttlFor(0); got != time.Minute {
		t.Errorf("unpopular entry TTL = %v, want base", got)
	}
	if got := c.ttlFor(10); got != 2*time.Minute {
		t.Errorf("at threshold TTL = %v, want 2x base", got)
	}
	// capped at 1 + maxTTLMultiplier
	if got := c.ttlFor(1000); got != 4*time.Minute {
		t.Errorf("capped TTL = %v, want 4x base", got)
	}
}

func TestAdaptiveTTLDisabled(t *testing.T) {
	c := newTestCache(t, Config{BaseTTL: time.Minute})
	if got := c.ttlFor(1000); got != time.Minute {
		t.Errorf("TTL = %v, want base when adaptation disabled", got)
	}
}

func TestPopularityIncrementsOnHit(t *testing.T) {
	kv := NewMemoryKV()
	c := New(kv, Config{}, nil)
	ctx := context.Background()
	vector := []float32{1}
	key := c.Key(vector, 10, 0, nil)

	readEntry := func() Entry {
		t.Helper()
		raw, err := kv.Get(ctx, key)
		if err != nil {
			t.Fatalf("raw get failed: %v", err)
		}
		entry, err := c.decode(raw)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		return entry
	}

	c.Set(ctx, vector, 10, 0, nil, someResults("a"))
	written := readEntry()
	if written.Popularity != 1 {
		t.Errorf("popularity after write = %d, want 1", written.Popularity)
	}

	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if _, ok := c.Get(ctx, vector, 10, 0, nil); !ok {
			t.Fatal("expected hit")
		}
	}

	entry := readEntry()
	if entry.Popularity != 4 {
		t.Errorf("popularity = %d, want 4", entry.Popularity)
	}
	if !entry.CachedAt.After(written.CachedAt) {
		t.Error("hit should refresh the entry timestamp")
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	c := newTestCache(t, Config{Compression: true})
	ctx := context.Background()
	vector := []float32{1, 2}

	c.Set(ctx, vector, 10, 0, nil, someResults("a"))
	results, ok := c.Get(ctx, vector, 10, 0, nil)
	if !ok || len(results) != 1 || results[0].ID != "a" {
		t.Errorf("compressed round trip failed: %v %+v", ok, results)
	}
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	kv := NewMemoryKV()
	c := New(kv, Config{}, nil)
	ctx := context.Background()
	vector := []float32{1}

	key := c.Key(vector, 10, 0, nil)
	if err := kv.Set(ctx, key, []byte("not json"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get(ctx, vector, 10, 0, nil); ok {
		t.Error("corrupt entry should read as a miss")
	}
	// the corrupt entry is also dropped
	if _, err := kv.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("corrupt entry not deleted: %v", err)
	}
}

func TestInvalidateDocument(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	c.Set(ctx, []float32{1}, 10, 0, nil, someResults("target", "other"))
	c.Set(ctx, []float32{2}, 10, 0, nil, someResults("other"))

	removed, err := c.InvalidateDocument(ctx, "target")
	if err != nil {
		t.Fatalf("InvalidateDocument failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := c.Get(ctx, []float32{1}, 10, 0, nil); ok {
		t.Error("entry referencing the document should be gone")
	}
	if _, ok := c.Get(ctx, []float32{2}, 10, 0, nil); !ok {
		t.Error("unrelated entry should survive")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	c.Set(ctx, []float32{1}, 10, 0, nil, someResults("a"))
	c.Set(ctx, []float32{2}, 10, 0, nil, someResults("b"))
	if err := c.Clear(ctx, ""); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.Get(ctx, []float32{1}, 10, 0, nil); ok {
		t.Error("cache should be empty after Clear")
	}
}

func TestMemoryKVExpiry(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := kv.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := kv.Get(ctx, "k"); err != ErrCacheMiss {
		t.Errorf("expected miss after expiry, got %v", err)
	}
}
