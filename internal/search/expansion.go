package search

import (
	"strings"

	"github.com/studyloop/retrieval/pkg/utils"
)

// synonyms is a fixed expansion table for common technical vocabulary.
// Expansion is deliberately conservative: it only ever appends terms, and
// only for natural-language queries where recall matters more than
// precision.
var synonyms = map[string][]string{
	"error":   {"exception", "failure"},
	"bug":     {"defect", "issue"},
	"fix":     {"repair", "resolve"},
	"fast":    {"quick", "performant"},
	"slow":    {"latency", "sluggish"},
	"delete":  {"remove", "drop"},
	"create":  {"add", "insert"},
	"config":  {"configuration", "settings"},
	"auth":    {"authentication", "login"},
	"doc":     {"document", "documentation"},
	"db":      {"database", "storage"},
	"test":    {"verify", "check"},
	"deploy":  {"release", "rollout"},
	"monitor": {"observe", "track"},
	"search":  {"query", "lookup"},
	"improve": {"optimize", "enhance"},
	"example": {"sample", "tutorial"},
	"guide":   {"tutorial", "howto"},
	"install": {"setup", "installation"},
	"upgrade": {"update", "migration"},
}

// maxExpansionTerms caps how many synonyms are appended so expansion never
// drowns the original query.
const maxExpansionTerms = 4

// ExpandQuery appends synonyms for known terms. Should only be called for
// natural-language queries; expanding an exact term lookup degrades its
// precision.
func ExpandQuery(query string) string {
	tokens := utils.Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		seen[token] = struct{}{}
	}

	var added []string
	for _, token := range tokens {
		if len(added) >= maxExpansionTerms {
			break
		}
		for _, synonym := range synonyms[token] {
			if _, dup := seen[synonym]; dup {
				continue
			}
			seen[synonym] = struct{}{}
			added = append(added, synonym)
			if len(added) >= maxExpansionTerms {
				break
			}
		}
	}
	if len(added) == 0 {
		return query
	}
	return query + " " + strings.Join(added, " ")
}

// ShouldExpand reports whether a query benefits from expansion: long enough
// to carry intent and sparse enough in content terms to read as natural
// language.
func ShouldExpand(tokenCount int, keywordDensity float64, hasKeywords bool) bool {
	return !hasKeywords && tokenCount > 3 && keywordDensity < 0.6
}
