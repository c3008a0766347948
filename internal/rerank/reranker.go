// Package rerank re-scores retrieval candidates against the query with a
// cross-encoder. Rerank scores replace stage-native scores entirely; when no
// reranker is loaded the engine keeps the stage-native ranking instead.
package rerank

import (
	"context"
)

// Result is one reranked document. Index refers back into the documents
// slice passed to Rerank, so callers can map scores onto their candidates.
type Result struct {
	Index    int
	Score    float64
	Document string
}

// Reranker scores documents by relevance to a query.
type Reranker interface {
	// Rerank submits all documents in one inference call and returns them
	// sorted by score descending. topK of 0 returns all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error)

	// Available reports whether the reranker can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoOpReranker keeps the incoming order, for configurations where
// reranking is turned off but a Reranker is still required.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank returns the documents in their incoming order. Scores step down
// from 1.0 so downstream sorting cannot reorder them.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]Result, error) {
	results := make([]Result, len(documents))
	for i, doc := range documents {
		results[i] = Result{
			Index:    i,
			Score:    1.0 - float64(i)*0.01,
			Document: doc,
		}
	}

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	return results, nil
}

// Available always reports true.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (n *NoOpReranker) Close() error {
	return nil
}
