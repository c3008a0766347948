// Package datasource defines the named stores of searchable nodes that the
// retrieval engine queries. Every datasource supports vector search; stores
// with server-side lexical scoring additionally implement HybridSearcher.
package datasource

import (
	"context"
	"sync"

	apperrors "github.com/lodestone-kb/lodestone/internal/errors"
	"github.com/lodestone-kb/lodestone/internal/node"
)

// Datasource is a named store of TextNodes with vector-search capability.
type Datasource interface {
	// Name returns the unique datasource name.
	Name() string

	// VectorSearch returns the topK nodes nearest to the embedding,
	// optionally restricted by a metadata filter.
	VectorSearch(ctx context.Context, embedding []float32, topK int, filter node.Filter) ([]*node.Scored, error)

	// ListAllNodes returns every node in the datasource, in a stable order.
	// Used to populate the lexical index.
	ListAllNodes(ctx context.Context) ([]*node.TextNode, error)

	// Close releases resources.
	Close() error
}

// HybridSearcher is implemented by datasources that combine lexical and
// vector scoring server-side. The engine probes for it with a type
// assertion and falls back to plain vector search when absent.
type HybridSearcher interface {
	Datasource

	// HybridSearch runs a native lexical+vector query.
	HybridSearch(ctx context.Context, queryText string, embedding []float32, topK int, filter node.Filter) ([]*node.Scored, error)
}

// Writer is implemented by datasources that accept ingestion.
type Writer interface {
	// AddNodes upserts nodes with their embeddings. len(nodes) must equal
	// len(vectors).
	AddNodes(ctx context.Context, nodes []*node.TextNode, vectors [][]float32) error
}

// Registry holds the registered datasources. Registration happens at
// startup; retrieval only reads.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Datasource
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Datasource),
	}
}

// Register adds a datasource. Names must be unique.
func (r *Registry) Register(ds Datasource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ds.Name()
	if _, exists := r.sources[name]; exists {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, "datasource already registered", nil).
			WithDetail("name", name)
	}
	r.sources[name] = ds
	r.order = append(r.order, name)
	return nil
}

// Get returns the datasource with the given name.
func (r *Registry) Get(name string) (Datasource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.sources[name]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeDatasourceNotFound, "datasource not found", nil).
			WithDetail("name", name)
	}
	return ds, nil
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Resolve maps requested names to datasources. An empty request resolves to
// every registered datasource. Unknown names are skipped; the second return
// lists them so callers can log the degradation.
func (r *Registry) Resolve(names []string) ([]Datasource, []string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sources) == 0 {
		return nil, nil, apperrors.New(apperrors.ErrCodeNoDatasource, "no datasources registered", nil)
	}

	if len(names) == 0 {
		names = r.order
	}

	var resolved []Datasource
	var missing []string
	for _, name := range names {
		if ds, ok := r.sources[name]; ok {
			resolved = append(resolved, ds)
		} else {
			missing = append(missing, name)
		}
	}

	return resolved, missing, nil
}

// Close closes every registered datasource.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, name := range r.order {
		if err := r.sources[name].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
