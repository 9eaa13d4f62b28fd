package vectorstore

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/studyloop/retrieval/internal/models"
	"github.com/studyloop/retrieval/internal/monitor"
)

// base is the shared layer concrete backends embed. It enforces
// initialization-before-use and dimension validation, and routes every
// operation through the performance monitor.
type base struct {
	provider         string
	logger           *zap.Logger
	monitor          *monitor.PerformanceMonitor
	allowDestructive bool

	initialized atomic.Bool
	config      models.IndexConfig
}

func newBase(provider string, logger *zap.Logger, mon *monitor.PerformanceMonitor, allowDestructive bool) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		provider:         provider,
		logger:           logger,
		monitor:          mon,
		allowDestructive: allowDestructive,
	}
}

// markInitialized records the index config and flips the guard.
func (b *base) markInitialized(cfg models.IndexConfig) {
	b.config = cfg
	b.initialized.Store(true)
}

func (b *base) requireInitialized() error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// validateVector checks shape against the configured dimensionality.
// Mismatches are hard errors, never truncated or padded.
func (b *base) validateVector(vector []float32) error {
	if len(vector) == 0 {
		return validationf("empty vector")
	}
	if len(vector) != b.config.Dimensions {
		return validationf("vector dimension %d does not match index dimension %d",
			len(vector), b.config.Dimensions)
	}
	return nil
}

// track feeds one finished operation to the monitor.
func (b *base) track(operation string, start time.Time, err error) {
	b.monitor.Observe(b.provider, operation, start, err)
}

// searchMulti fans Search out per query vector with bounded concurrency,
// preserving input order. It is a composition over Search, not a distinct
// algorithm; backends expose it directly.
func searchMulti(ctx context.Context, s Store, vectors [][]float32, opts models.SearchOptions) ([][]models.SearchResult, error) {
	results := make([][]models.SearchResult, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchMultiConcurrency)
	for i, vector := range vectors {
		i, vector := i, vector
		g.Go(func() error {
			r, err := s.Search(gctx, vector, opts)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// chunkDocuments splits docs into batches of at most size.
func chunkDocuments(docs []models.VectorDocument, size int) [][]models.VectorDocument {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var chunks [][]models.VectorDocument
	for start := 0; start < len(docs); start += size {
		end := start + size
		if end > len(docs) {
			end = len(docs)
		}
		chunks = append(chunks, docs[start:end])
	}
	return chunks
}
