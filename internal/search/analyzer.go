// Package search provides the hybrid retrieval engine: query analysis,
// parallel vector and keyword search, score fusion, reranking, and result
// diversity.
package search

import (
	"regexp"
	"strings"

	"github.com/studyloop/retrieval/internal/models"
	"github.com/studyloop/retrieval/pkg/utils"
)

// keywordIndicators are query shapes that signal a lexical intent: boolean
// operators, field-style constraints, and quoted phrases.
var (
	booleanPattern = regexp.MustCompile(`\b(AND|OR|NOT)\b`)
	fieldPattern   = regexp.MustCompile(`\b\w+\s*:\s*\S`)
	quotedPattern  = regexp.MustCompile(`"[^"]+"`)
)

// naturalLanguageOpeners suggest a question or instruction rather than a
// term lookup.
var naturalLanguageOpeners = map[string]struct{}{
	"how": {}, "what": {}, "why": {}, "when": {}, "where": {}, "who": {},
	"which": {}, "explain": {}, "describe": {}, "compare": {}, "show": {},
	"find": {}, "is": {}, "are": {}, "can": {}, "does": {}, "should": {},
}

// stopWords used for keyword density: a query dense in non-stopword terms
// reads as a term lookup, not a question.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "with": {}, "and": {},
	"or": {}, "not": {}, "at": {}, "by": {}, "from": {}, "as": {}, "it": {},
	"this": {}, "that": {}, "do": {}, "does": {}, "how": {}, "what": {},
	"why": {}, "when": {}, "where": {}, "i": {}, "you": {}, "my": {},
}

// Analyzer classifies queries so the engine can adapt retrieval weights to
// query intent.
type Analyzer struct{}

// NewAnalyzer creates a query analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze inspects the query's shape and classifies it as semantic, keyword,
// or hybrid, with suggested retrieval weights for each class.
func (a *Analyzer) Analyze(query string) models.QueryAnalysis {
	tokens := utils.Tokenize(query)
	analysis := models.QueryAnalysis{TokenCount: len(tokens)}

	analysis.HasKeywords = booleanPattern.MatchString(query) ||
		fieldPattern.MatchString(query) ||
		quotedPattern.MatchString(query)
	analysis.KeywordDensity = keywordDensity(tokens)
	analysis.HasNaturalLanguage = a.looksNatural(query, tokens, analysis.KeywordDensity)

	switch {
	case analysis.HasKeywords && !analysis.HasNaturalLanguage:
		analysis.QueryType = models.QueryTypeKeyword
		analysis.SuggestedWeights = models.SuggestedWeights{Vector: 0.3, Keyword: 0.7}
	case analysis.HasNaturalLanguage && !analysis.HasKeywords:
		analysis.QueryType = models.QueryTypeSemantic
		analysis.SuggestedWeights = models.SuggestedWeights{Vector: 0.8, Keyword: 0.2}
	default:
		analysis.QueryType = models.QueryTypeHybrid
		analysis.SuggestedWeights = models.SuggestedWeights{Vector: 0.6, Keyword: 0.4}
	}
	return analysis
}

// looksNatural detects question-like queries: an interrogative opener, a
// trailing question mark, or a long query with low term density.
func (a *Analyzer) looksNatural(query string, tokens []string, density float64) bool {
	if strings.HasSuffix(strings.TrimSpace(query), "?") {
		return true
	}
	if len(tokens) > 0 {
		if _, ok := naturalLanguageOpeners[tokens[0]]; ok {
			return true
		}
	}
	return len(tokens) > 3 && density < 0.6
}

// keywordDensity is the fraction of tokens that are content terms rather
// than stopwords.
func keywordDensity(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	content := 0
	for _, token := range tokens {
		if _, ok := stopWords[token]; !ok {
			content++
		}
	}
	return float64(content) / float64(len(tokens))
}
