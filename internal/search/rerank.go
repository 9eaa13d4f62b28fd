package search

import (
	"regexp"
	"time"

	"github.com/studyloop/retrieval/internal/models"
	"github.com/studyloop/retrieval/pkg/utils"
)

// RerankConfig tunes the post-fusion boosts. Zero values take the defaults.
type RerankConfig struct {
	// SubstantialContentChars is the content length at which the content
	// boost applies.
	SubstantialContentChars int `yaml:"substantial_content_chars"`
	// ContentBoost multiplies scores of results with substantial content.
	ContentBoost float64 `yaml:"content_boost"`
	// StructuredBoost multiplies scores of results whose content carries
	// structure: lists, headings, code fences, or tables.
	StructuredBoost float64 `yaml:"structured_boost"`
	// RecencyWindow is how fresh a result must be for the recency boost.
	RecencyWindow time.Duration `yaml:"recency_window"`
	// RecencyBoost multiplies scores of recently updated results.
	RecencyBoost float64 `yaml:"recency_boost"`
	// DuplicateThreshold is the Jaccard similarity above which two results
	// count as near-duplicates.
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	// DuplicatePenalty multiplies a score once per higher-ranked duplicate.
	DuplicatePenalty float64 `yaml:"duplicate_penalty"`
	// PenaltyFloor bounds the cumulative duplicate penalty.
	PenaltyFloor float64 `yaml:"penalty_floor"`
}

// ApplyDefaults fills zero values with the standard boosts.
func (c *RerankConfig) ApplyDefaults() {
	if c.SubstantialContentChars <= 0 {
		c.SubstantialContentChars = 500
	}
	if c.ContentBoost <= 0 {
		c.ContentBoost = 1.1
	}
	if c.StructuredBoost <= 0 {
		c.StructuredBoost = 1.05
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = 30 * 24 * time.Hour
	}
	if c.RecencyBoost <= 0 {
		c.RecencyBoost = 1.02
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = 0.8
	}
	if c.DuplicatePenalty <= 0 {
		c.DuplicatePenalty = 0.95
	}
	if c.PenaltyFloor <= 0 {
		c.PenaltyFloor = 0.7
	}
}

// Reranker applies content-quality boosts and a diversity penalty on top of
// fused scores, then re-sorts.
type Reranker struct {
	cfg RerankConfig
}

// NewReranker creates a reranker with the given boosts.
func NewReranker(cfg RerankConfig) *Reranker {
	cfg.ApplyDefaults()
	return &Reranker{cfg: cfg}
}

// Rerank boosts substantial, structured, and fresh results, then penalizes
// near-duplicates of higher-ranked results. Results are re-sorted and
// re-ranked in place.
func (r *Reranker) Rerank(results []models.HybridSearchResult) []models.HybridSearchResult {
	if len(results) == 0 {
		return results
	}
	now := time.Now()
	for i := range results {
		results[i].FusedScore *= r.boost(&results[i], now)
		results[i].Score = results[i].FusedScore
	}
	r.penalizeDuplicates(results)
	sortAndRank(results)
	return results
}

func (r *Reranker) boost(result *models.HybridSearchResult, now time.Time) float64 {
	multiplier := 1.0
	if len(result.Content) > r.cfg.SubstantialContentChars {
		multiplier *= r.cfg.ContentBoost
	}
	if structuredPattern.MatchString(result.Content) {
		multiplier *= r.cfg.StructuredBoost
	}
	if updated, ok := updatedAt(result.Metadata); ok && now.Sub(updated) < r.cfg.RecencyWindow {
		multiplier *= r.cfg.RecencyBoost
	}
	return multiplier
}

// structuredPattern spots markdown-style structure at line starts: headings,
// list bullets, numbered items, table rows, and code fences.
var structuredPattern = regexp.MustCompile(`(?m)^\s*(#{1,6}\s|[-*+]\s|\d+\.\s|\||` + "```" + `)`)

// penalizeDuplicates walks results in current score order and discounts each
// result once per higher-scored near-duplicate, down to the penalty floor.
func (r *Reranker) penalizeDuplicates(results []models.HybridSearchResult) {
	sortAndRank(results)
	for i := 1; i < len(results); i++ {
		if results[i].Content == "" {
			continue
		}
		penalty := 1.0
		for j := 0; j < i; j++ {
			if results[j].Content == "" {
				continue
			}
			if utils.JaccardSimilarity(results[i].Content, results[j].Content) > r.cfg.DuplicateThreshold {
				penalty *= r.cfg.DuplicatePenalty
			}
		}
		if penalty < r.cfg.PenaltyFloor {
			penalty = r.cfg.PenaltyFloor
		}
		results[i].FusedScore *= penalty
		results[i].Score = results[i].FusedScore
	}
}

// updatedAt extracts a freshness timestamp from metadata. Accepts time.Time
// values and RFC 3339 strings under the common field names.
func updatedAt(metadata map[string]interface{}) (time.Time, bool) {
	for _, field := range []string{"updated_at", "created_at", "timestamp"} {
		value, ok := metadata[field]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case time.Time:
			return v, true
		case string:
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
