package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studyloop/retrieval/internal/cache"
	"github.com/studyloop/retrieval/internal/keyword"
	"github.com/studyloop/retrieval/internal/models"
	"github.com/studyloop/retrieval/internal/monitor"
	"github.com/studyloop/retrieval/internal/vectorstore"
	"github.com/studyloop/retrieval/pkg/utils"
)

// Config tunes the hybrid engine.
type Config struct {
	Hybrid models.HybridSearchConfig `yaml:"hybrid"`
	Rerank RerankConfig              `yaml:"rerank"`
	// TopKCandidates is the per-retriever candidate pool handed to fusion.
	// Defaults to 50.
	TopKCandidates int `yaml:"top_k_candidates"`
	// AllowDegraded keeps serving from the surviving retriever when the
	// other one fails. When false, any retriever failure fails the search.
	AllowDegraded bool `yaml:"allow_degraded"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Hybrid == (models.HybridSearchConfig{}) {
		c.Hybrid = models.DefaultHybridSearchConfig()
	}
	c.Rerank.ApplyDefaults()
	if c.TopKCandidates <= 0 {
		c.TopKCandidates = 50
	}
}

// Query is one hybrid search request. Text drives the lexical branch and
// analysis; Vector drives the semantic branch. Embedding happens upstream,
// so a caller typically supplies both for the same input.
type Query struct {
	Text      string
	Vector    []float32
	TopK      int
	Threshold float64
	Filter    map[string]interface{}
	// ExcludeIDs drops known-bad results after fusion (negative feedback).
	ExcludeIDs []string
}

// Response is a ranked hybrid result set with the query diagnostics.
type Response struct {
	Results  []models.HybridSearchResult
	Analysis models.QueryAnalysis
	Total    int
	Took     time.Duration
	// Degraded is set when one retriever failed and the response was built
	// from the other alone.
	Degraded bool
	CacheHit bool
}

// Engine runs hybrid (vector + keyword) retrieval: it analyzes the query,
// fans both retrievers out in parallel, fuses the ranked lists, and reranks.
type Engine struct {
	store    vectorstore.Store
	keywords keyword.Index
	results  *cache.ResultCache
	analyzer *Analyzer
	reranker *Reranker
	logger   *zap.Logger
	monitor  *monitor.PerformanceMonitor
	cfg      Config
}

// NewEngine creates a hybrid engine. The result cache is optional; a nil
// cache disables caching without changing behavior.
func NewEngine(store vectorstore.Store, keywords keyword.Index, results *cache.ResultCache, mon *monitor.PerformanceMonitor, logger *zap.Logger, cfg Config) *Engine {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		keywords: keywords,
		results:  results,
		analyzer: NewAnalyzer(),
		reranker: NewReranker(cfg.Rerank),
		logger:   logger,
		monitor:  mon,
		cfg:      cfg,
	}
}

// Search runs one hybrid query.
func (e *Engine) Search(ctx context.Context, query Query) (resp *Response, err error) {
	start := time.Now()
	defer func() { e.monitor.Observe("engine", "search", start, err) }()

	if query.Text == "" && len(query.Vector) == 0 {
		return nil, fmt.Errorf("query needs text, a vector, or both")
	}
	if query.TopK <= 0 {
		query.TopK = 10
	}

	analysis := e.analyzer.Analyze(query.Text)
	vectorWeight, keywordWeight := e.effectiveWeights(analysis, query)
	e.logger.Debug("hybrid search",
		zap.String("query", utils.Truncate(query.Text, 120)),
		zap.String("query_type", string(analysis.QueryType)),
		zap.Float64("vector_weight", vectorWeight),
		zap.Float64("keyword_weight", keywordWeight))

	resp = &Response{Analysis: analysis}

	var (
		vectorResults  []models.SearchResult
		keywordResults []keyword.Result
		errChan        = make(chan error, 2)
		wg             sync.WaitGroup
	)

	if vectorWeight > 0 && len(query.Vector) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, hit, vErr := e.vectorSearch(ctx, query)
			if vErr != nil {
				errChan <- fmt.Errorf("vector search failed: %w", vErr)
				return
			}
			vectorResults = results
			resp.CacheHit = hit
		}()
	}

	if keywordWeight > 0 && query.Text != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text := query.Text
			if e.cfg.Hybrid.KeywordExpansion &&
				ShouldExpand(analysis.TokenCount, analysis.KeywordDensity, analysis.HasKeywords) {
				text = ExpandQuery(text)
			}
			results, kErr := e.keywords.Search(ctx, text, e.cfg.TopKCandidates, nil)
			if kErr != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", kErr)
				return
			}
			keywordResults = results
		}()
	}

	wg.Wait()
	close(errChan)
	var failures []error
	for retrievalErr := range errChan {
		failures = append(failures, retrievalErr)
	}
	if len(failures) > 0 {
		bothRan := vectorWeight > 0 && len(query.Vector) > 0 && keywordWeight > 0 && query.Text != ""
		if !e.cfg.AllowDegraded || !bothRan || len(failures) > 1 {
			return nil, failures[0]
		}
		e.logger.Warn("retriever failed, serving degraded results", zap.Error(failures[0]))
		resp.Degraded = true
	}

	fused := Fuse(e.cfg.Hybrid.FusionMethod, vectorResults, keywordResults, vectorWeight, keywordWeight)
	fused = excludeResults(fused, query.ExcludeIDs)
	if err = e.hydrate(ctx, fused); err != nil {
		e.logger.Warn("result hydration incomplete", zap.Error(err))
		err = nil
	}
	if e.cfg.Hybrid.RerankingEnabled {
		fused = e.reranker.Rerank(fused)
	}

	resp.Total = len(fused)
	if len(fused) > query.TopK {
		fused = fused[:query.TopK]
	}
	resp.Results = fused
	resp.Took = time.Since(start)
	return resp, nil
}

// SearchSimilar runs query-by-example: retrieve the document's own vector
// and search with it, excluding the example from the results.
func (e *Engine) SearchSimilar(ctx context.Context, id string, topK int, filter map[string]interface{}) (*Response, error) {
	docs, err := e.store.Get(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("load example document: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("example document %q not found", id)
	}
	return e.Search(ctx, Query{
		Text:       docs[0].Content,
		Vector:     docs[0].Vector,
		TopK:       topK,
		Filter:     filter,
		ExcludeIDs: []string{id},
	})
}

// effectiveWeights adapts the configured weights to the analyzed query: the
// weight matching the detected query type is raised to at least the
// analyzer's suggestion, then both weights drift further toward the
// suggestion by the semantic drift factor, and the result renormalizes to
// sum 1. Branches that cannot run get weight 0 and the other takes it all.
func (e *Engine) effectiveWeights(analysis models.QueryAnalysis, query Query) (float64, float64) {
	vector := e.cfg.Hybrid.VectorWeight
	kw := e.cfg.Hybrid.KeywordWeight
	switch analysis.QueryType {
	case models.QueryTypeSemantic:
		if analysis.SuggestedWeights.Vector > vector {
			vector = analysis.SuggestedWeights.Vector
			kw = 1 - vector
		}
	case models.QueryTypeKeyword:
		if analysis.SuggestedWeights.Keyword > kw {
			kw = analysis.SuggestedWeights.Keyword
			vector = 1 - kw
		}
	}
	drift := e.cfg.Hybrid.SemanticDrift
	vector = (1-drift)*vector + drift*analysis.SuggestedWeights.Vector
	kw = (1-drift)*kw + drift*analysis.SuggestedWeights.Keyword

	if len(query.Vector) == 0 {
		vector = 0
	}
	if query.Text == "" || e.keywords == nil {
		kw = 0
	}
	total := vector + kw
	if total == 0 {
		return 0, 0
	}
	return vector / total, kw / total
}

// vectorSearch consults the result cache around the store. Cache failures
// never fail the search.
func (e *Engine) vectorSearch(ctx context.Context, query Query) ([]models.SearchResult, bool, error) {
	topK := e.cfg.TopKCandidates
	if e.results != nil {
		if cached, ok := e.results.Get(ctx, query.Vector, topK, query.Threshold, query.Filter); ok {
			return cached, true, nil
		}
	}
	results, err := e.store.Search(ctx, query.Vector, models.SearchOptions{
		TopK:            topK,
		Threshold:       query.Threshold,
		Filter:          query.Filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, false, err
	}
	if e.results != nil {
		e.results.Set(ctx, query.Vector, topK, query.Threshold, query.Filter, results)
	}
	return results, false, nil
}

// hydrate fills content and metadata for keyword-only results, which arrive
// from the lexical index as bare ids.
func (e *Engine) hydrate(ctx context.Context, results []models.HybridSearchResult) error {
	var missing []string
	for i := range results {
		if results[i].Content == "" && results[i].Metadata == nil {
			missing = append(missing, results[i].ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	docs, err := e.store.Get(ctx, missing)
	if err != nil {
		return err
	}
	byID := make(map[string]models.VectorDocument, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	for i := range results {
		if doc, ok := byID[results[i].ID]; ok && results[i].Content == "" {
			results[i].Content = doc.Content
			results[i].Metadata = doc.Metadata
		}
	}
	return nil
}

func excludeResults(results []models.HybridSearchResult, excludeIDs []string) []models.HybridSearchResult {
	if len(excludeIDs) == 0 {
		return results
	}
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	kept := results[:0]
	for _, r := range results {
		if _, skip := excluded[r.ID]; !skip {
			kept = append(kept, r)
		}
	}
	sortAndRank(kept)
	return kept
}
