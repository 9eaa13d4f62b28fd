package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/studyloop/retrieval/internal/models"
)

// keyPrefix namespaces cache entries so pattern invalidation cannot touch
// unrelated keys in a shared Redis.
const keyPrefix = "retrieval:search:"

// maxTTLMultiplier caps adaptive extension: a very popular entry lives at
// most 4x the base TTL.
const maxTTLMultiplier = 3.0

// Config tunes the result cache.
type Config struct {
	// BaseTTL is the lifetime of an unpopular entry. Defaults to 5 minutes.
	BaseTTL time.Duration `yaml:"base_ttl"`
	// MaxResults rejects result sets larger than this. Defaults to 100.
	MaxResults int `yaml:"max_results"`
	// MaxEntryBytes rejects encoded entries larger than this. Defaults to 1 MiB.
	MaxEntryBytes int `yaml:"max_entry_bytes"`
	// Compression gzips entries before storage.
	Compression bool `yaml:"compression"`
	// AdaptiveTTL scales entry lifetime with hit popularity.
	AdaptiveTTL bool `yaml:"adaptive_ttl"`
	// PopularityThreshold is the hit count at which TTL has grown by one
	// base-TTL step. Defaults to 10.
	PopularityThreshold int `yaml:"popularity_threshold"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.BaseTTL <= 0 {
		c.BaseTTL = 5 * time.Minute
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 100
	}
	if c.MaxEntryBytes <= 0 {
		c.MaxEntryBytes = 1 << 20
	}
	if c.PopularityThreshold <= 0 {
		c.PopularityThreshold = 10
	}
}

// Entry is the stored shape: the results plus the bookkeeping that drives
// adaptive TTL and age-based invalidation.
type Entry struct {
	Results    []models.SearchResult `json:"results"`
	QueryHash  string                `json:"query_hash"`
	Popularity int64                 `json:"popularity"`
	CachedAt   time.Time             `json:"cached_at"`
	// Size is the serialized entry size in bytes before compression.
	Size int `json:"size"`
}

// Stats counts cache traffic since process start.
type Stats struct {
	Hits     int64
	Misses   int64
	Writes   int64
	Rejected int64
}

// ResultCache caches search results keyed by the full query shape. All cache
// failures are absorbed locally: a read error is a miss, a write error is a
// log line. The cache never fails a search.
//
// The popularity counter is read-modify-write without a lock; concurrent hits
// may lose increments. That skews TTL slightly low, which is acceptable.
type ResultCache struct {
	kv     KV
	cfg    Config
	logger *zap.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	writes   atomic.Int64
	rejected atomic.Int64
}

// New creates a result cache over the given KV.
func New(kv KV, cfg Config, logger *zap.Logger) *ResultCache {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{kv: kv, cfg: cfg, logger: logger}
}

// Key derives a deterministic cache key from the query shape. Vector
// components are rounded to 4 decimal places so near-identical float noise
// from re-embedding the same text still hits.
func (c *ResultCache) Key(vector []float32, topK int, threshold float64, filter map[string]interface{}) string {
	h := sha256.New()
	for _, v := range vector {
		rounded := math.Round(float64(v)*10000) / 10000
		io.WriteString(h, strconv.FormatFloat(rounded, 'f', 4, 64))
		io.WriteString(h, ",")
	}
	fmt.Fprintf(h, "|k=%d|t=%s|", topK, strconv.FormatFloat(threshold, 'f', 4, 64))
	if len(filter) > 0 {
		// json.Marshal emits map keys sorted, so equal filters hash equal
		if encoded, err := json.Marshal(filter); err == nil {
			h.Write(encoded)
		}
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns cached results, or (nil, false) on any miss or failure. A hit
// bumps the entry's popularity, refreshes its timestamp, and re-stores it
// with its extended TTL.
func (c *ResultCache) Get(ctx context.Context, vector []float32, topK int, threshold float64, filter map[string]interface{}) ([]models.SearchResult, bool) {
	key := c.Key(vector, topK, threshold, filter)
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if err != ErrCacheMiss {
			c.logger.Warn("cache read failed, treating as miss", zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	entry, err := c.decode(raw)
	if err != nil {
		c.logger.Warn("cache entry undecodable, dropping", zap.Error(err))
		c.kv.Delete(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	entry.Popularity++
	entry.CachedAt = time.Now().UTC()
	if err := c.store(ctx, key, entry); err != nil {
		c.logger.Warn("cache popularity refresh failed", zap.Error(err))
	}
	return entry.Results, true
}

// Set stores results for the query shape. Empty and oversized result sets
// are silently refused; caching them would either pin useless entries or
// blow the entry size budget.
func (c *ResultCache) Set(ctx context.Context, vector []float32, topK int, threshold float64, filter map[string]interface{}, results []models.SearchResult) {
	if len(results) == 0 || len(results) > c.cfg.MaxResults {
		c.rejected.Add(1)
		return
	}
	key := c.Key(vector, topK, threshold, filter)
	// the write itself counts as the first use
	entry := Entry{Results: results, QueryHash: key, Popularity: 1, CachedAt: time.Now().UTC()}
	if err := c.store(ctx, key, entry); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

// store encodes and writes an entry with its popularity-derived TTL.
func (c *ResultCache) store(ctx context.Context, key string, entry Entry) error {
	plain, err := json.Marshal(entry.Results)
	if err != nil {
		return err
	}
	entry.Size = len(plain)
	encoded, err := c.encode(entry)
	if err != nil {
		return err
	}
	if entry.Size > c.cfg.MaxEntryBytes || len(encoded) > c.cfg.MaxEntryBytes {
		c.rejected.Add(1)
		return nil
	}
	if err := c.kv.Set(ctx, key, encoded, c.ttlFor(entry.Popularity)); err != nil {
		return err
	}
	c.writes.Add(1)
	return nil
}

// ttlFor scales the base TTL with popularity: lifetime grows linearly with
// hit count up to maxTTLMultiplier extra base-TTL steps.
func (c *ResultCache) ttlFor(popularity int64) time.Duration {
	if !c.cfg.AdaptiveTTL || popularity <= 0 {
		return c.cfg.BaseTTL
	}
	boost := float64(popularity) / float64(c.cfg.PopularityThreshold)
	if boost > maxTTLMultiplier {
		boost = maxTTLMultiplier
	}
	return time.Duration(float64(c.cfg.BaseTTL) * (1 + boost))
}

// InvalidateDocument deletes every cached entry that references the given
// document id. Returns the number of entries removed.
func (c *ResultCache) InvalidateDocument(ctx context.Context, id string) (int, error) {
	keys, err := c.kv.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan cache keys: %w", err)
	}
	removed := 0
	for _, key := range keys {
		raw, err := c.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		entry, err := c.decode(raw)
		if err != nil {
			c.kv.Delete(ctx, key)
			continue
		}
		for _, result := range entry.Results {
			if result.ID == id {
				if err := c.kv.Delete(ctx, key); err == nil {
					removed++
				}
				break
			}
		}
	}
	return removed, nil
}

// InvalidateOlderThan deletes entries last written or hit before now-age.
func (c *ResultCache) InvalidateOlderThan(ctx context.Context, age time.Duration) (int, error) {
	keys, err := c.kv.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan cache keys: %w", err)
	}
	cutoff := time.Now().UTC().Add(-age)
	removed := 0
	for _, key := range keys {
		raw, err := c.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		entry, err := c.decode(raw)
		if err != nil || entry.CachedAt.Before(cutoff) {
			if err := c.kv.Delete(ctx, key); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Clear drops entries matching the key pattern; an empty pattern drops the
// whole cache namespace.
func (c *ResultCache) Clear(ctx context.Context, pattern string) error {
	if pattern == "" {
		pattern = "*"
	}
	keys, err := c.kv.Keys(ctx, keyPrefix+pattern)
	if err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	return c.kv.Delete(ctx, keys...)
}

// Stats snapshots the traffic counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Writes:   c.writes.Load(),
		Rejected: c.rejected.Load(),
	}
}

func (c *ResultCache) encode(entry Entry) ([]byte, error) {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if !c.cfg.Compression {
		return encoded, nil
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(encoded); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode handles both plain and gzipped entries, keyed off the gzip magic
// bytes, so toggling compression does not orphan existing entries.
func (c *ResultCache) decode(raw []byte) (Entry, error) {
	var entry Entry
	if len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return entry, err
		}
		defer gz.Close()
		if raw, err = io.ReadAll(gz); err != nil {
			return entry, err
		}
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, err
	}
	return entry, nil
}
