package search

import (
	"sort"

	"github.com/studyloop/retrieval/internal/keyword"
	"github.com/studyloop/retrieval/internal/models"
)

// rrfK is the reciprocal rank fusion damping constant. 60 is the standard
// value from the original RRF evaluation and keeps single-list rank 1 from
// dominating.
const rrfK = 60.0

// NormalizeKeywordScores maps raw lexical scores to [0,1] by dividing by the
// maximum, so they fuse on the same scale as vector similarities.
func NormalizeKeywordScores(results []keyword.Result) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// Fuse merges the two ranked lists under the given method and weights. The
// output is sorted by fused score descending with 1-based rank positions.
// Fusion operates on ids and scores only; the engine hydrates content and
// metadata afterwards.
func Fuse(method models.FusionMethod, vectorResults []models.SearchResult, keywordResults []keyword.Result, vectorWeight, keywordWeight float64) []models.HybridSearchResult {
	vectorScores := make(map[string]float64, len(vectorResults))
	vectorRanks := make(map[string]int, len(vectorResults))
	for i, r := range vectorResults {
		vectorScores[r.ID] = r.Score
		vectorRanks[r.ID] = i + 1
	}
	keywordScores := NormalizeKeywordScores(keywordResults)
	keywordRanks := make(map[string]int, len(keywordResults))
	for i, r := range keywordResults {
		keywordRanks[r.ID] = i + 1
	}

	merged := make(map[string]*models.HybridSearchResult)
	add := func(id string) *models.HybridSearchResult {
		if r, ok := merged[id]; ok {
			return r
		}
		r := &models.HybridSearchResult{}
		r.ID = id
		r.VectorScore = vectorScores[id]
		r.KeywordScore = keywordScores[id]
		merged[id] = r
		return r
	}
	for _, r := range vectorResults {
		hr := add(r.ID)
		hr.Content = r.Content
		hr.Metadata = r.Metadata
		hr.Vector = r.Vector
	}
	for _, r := range keywordResults {
		add(r.ID)
	}

	// a result absent from one list ranks just past that list's end, so it
	// still contributes a small reciprocal term instead of zero
	absentVectorRank := len(vectorResults) + 1
	absentKeywordRank := len(keywordResults) + 1

	for id, r := range merged {
		switch method {
		case models.FusionLinear:
			r.FusedScore = vectorWeight*r.VectorScore + keywordWeight*r.KeywordScore
		case models.FusionHarmonic:
			r.FusedScore = harmonicFuse(r.VectorScore, r.KeywordScore, vectorWeight, keywordWeight)
		case models.FusionConvex:
			r.FusedScore = convexFuse(r.VectorScore, r.KeywordScore, vectorWeight, keywordWeight)
		default: // rrf
			vRank, ok := vectorRanks[id]
			if !ok {
				vRank = absentVectorRank
			}
			kRank, ok := keywordRanks[id]
			if !ok {
				kRank = absentKeywordRank
			}
			r.FusedScore = vectorWeight/(rrfK+float64(vRank)) + keywordWeight/(rrfK+float64(kRank))
		}
		r.Score = r.FusedScore
	}

	results := make([]models.HybridSearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}
	sortAndRank(results)
	return results
}

// harmonicFuse takes the weighted harmonic mean when both retrievers agree
// the result is relevant; when one score is zero the harmonic mean would
// collapse, so it falls back to the weighted sum.
func harmonicFuse(vectorScore, keywordScore, vectorWeight, keywordWeight float64) float64 {
	if vectorScore > 0 && keywordScore > 0 {
		return (vectorWeight + keywordWeight) / (vectorWeight/vectorScore + keywordWeight/keywordScore)
	}
	return vectorWeight*vectorScore + keywordWeight*keywordScore
}

// convexFuse adapts the weights per result: the configured weights are
// scaled by each retriever's score share, so the stronger signal for this
// particular result dominates its fusion.
func convexFuse(vectorScore, keywordScore, vectorWeight, keywordWeight float64) float64 {
	weightedVector := vectorWeight * vectorScore
	weightedKeyword := keywordWeight * keywordScore
	total := weightedVector + weightedKeyword
	if total == 0 {
		return 0
	}
	return (weightedVector*vectorScore + weightedKeyword*keywordScore) / total
}

// sortAndRank orders by fused score descending and assigns 1-based ranks.
// Ties break on id so output is deterministic.
func sortAndRank(results []models.HybridSearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ID < results[j].ID
	})
	for i := range results {
		results[i].RankPosition = i + 1
	}
}
