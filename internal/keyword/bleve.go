package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// indexedDoc is the shape Bleve sees. Metadata string values are flattened
// into a single searchable field so filterable attributes (category, tags)
// also contribute to lexical matching.
type indexedDoc struct {
	Content    string `json:"content"`
	Attributes string `json:"attributes"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reused; remove the directory to force a rebuild after a mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open keyword index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryIndex creates an ephemeral in-memory Bleve index. Used in tests
// and for corpora that are re-indexed from the vector store on startup.
func NewMemoryIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so exact words
	// match without stemming surprises.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("attributes", textFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// Index adds or replaces one document.
func (b *BleveIndex) Index(ctx context.Context, id, content string, metadata map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("keyword index requires a document id")
	}
	return b.index.Index(id, indexedDoc{
		Content:    content,
		Attributes: flattenMetadata(metadata),
	})
}

// IndexBatch indexes documents through one Bleve batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs []Document) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("keyword index requires a document id")
		}
		if err := batch.Index(doc.ID, indexedDoc{
			Content:    doc.Content,
			Attributes: flattenMetadata(doc.Metadata),
		}); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Search runs a match query and returns up to limit hits ordered by score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *Options) ([]Result, error) {
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		q = bleve.NewMatchQuery(query)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	out := make([]Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// buildFuzzyQuery ORs a FuzzyQuery per term, mimicking MatchQuery semantics
// with typo tolerance.
func buildFuzzyQuery(query string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return bleve.NewMatchQuery(query)
	}
	if len(terms) == 1 {
		fq := bleve.NewFuzzyQuery(terms[0])
		fq.SetFuzziness(fuzziness)
		return fq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// flattenMetadata joins string-ish metadata values into one searchable blob.
func flattenMetadata(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	var parts []string
	for _, value := range metadata {
		switch v := value.(type) {
		case string:
			parts = append(parts, v)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}
		case []string:
			parts = append(parts, v...)
		}
	}
	return strings.Join(parts, " ")
}
