package vectorstore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/studyloop/retrieval/internal/monitor"
)

// Options selects and configures a backend.
type Options struct {
	// Provider is one of "memory", "pgvector", "qdrant", "pinecone".
	Provider string
	// DSN is the connection URL for networked backends.
	DSN string
	// Table overrides the pgvector table name.
	Table string
	// AllowDestructive enables Clear.
	AllowDestructive bool

	Logger  *zap.Logger
	Monitor *monitor.PerformanceMonitor
}

// Factory hands out one store per provider name, constructing lazily and
// caching the instance so repeated lookups share connections.
type Factory struct {
	opts Options

	mu     sync.Mutex
	stores map[string]Store
}

// NewFactory creates a factory with the given default options.
func NewFactory(opts Options) *Factory {
	return &Factory{
		opts:   opts,
		stores: make(map[string]Store),
	}
}

// Get returns the cached store for the provider, constructing it on first
// use. An empty provider selects the factory default.
func (f *Factory) Get(provider string) (Store, error) {
	if provider == "" {
		provider = f.opts.Provider
	}
	if provider == "" {
		provider = "memory"
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if store, ok := f.stores[provider]; ok {
		return store, nil
	}
	store, err := f.build(provider)
	if err != nil {
		return nil, err
	}
	f.stores[provider] = store
	return store, nil
}

func (f *Factory) build(provider string) (Store, error) {
	switch provider {
	case "memory":
		return NewMemoryStore(f.opts.Logger, f.opts.Monitor, f.opts.AllowDestructive), nil
	case "pgvector":
		return NewPgVectorStore(PgVectorConfig{
			DSN:              f.opts.DSN,
			Table:            f.opts.Table,
			AllowDestructive: f.opts.AllowDestructive,
		}, f.opts.Logger, f.opts.Monitor)
	case "qdrant":
		return NewQdrantStore(), nil
	case "pinecone":
		return NewPineconeStore(), nil
	}
	return nil, validationf("unknown vector store provider %q", provider)
}

// Close shuts down every constructed store and clears the cache.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for name, store := range f.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.stores, name)
	}
	return firstErr
}
