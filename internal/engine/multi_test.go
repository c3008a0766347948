package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/internal/config"
	"github.com/lodestone-kb/lodestone/internal/node"
	"github.com/lodestone-kb/lodestone/internal/rerank"
)

// fakeRewriter returns canned variants and records what it was asked.
type fakeRewriter struct {
	variants []string

	mu      sync.Mutex
	queries []string
}

func (r *fakeRewriter) Rewrite(_ context.Context, query string, _ int) []string {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	return r.variants
}

// recordingEmbedder records every embedded query text. The engine embeds each
// variant before searching, so this is where the fan-out is observable.
type recordingEmbedder struct {
	mu      sync.Mutex
	queries []string
}

func (r *recordingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	r.queries = append(r.queries, text)
	r.mu.Unlock()
	return []float32{1, 0, 0, 0}, nil
}

func rewriteEnabled(variants int) config.RewriteConfig {
	return config.RewriteConfig{Enabled: true, Variants: variants}
}

func TestRetrieveMulti_DisabledDelegatesToRetrieve(t *testing.T) {
	src := &fakeSource{name: "a", results: []*node.Scored{scored("n1", 0.9, node.SourceVector)}}
	rw := &fakeRewriter{variants: []string{"rewritten"}}

	e := newTestEngine(t, Options{
		Registry: registryWith(t, src),
		Rewriter: rw,
		Rewrite:  config.RewriteConfig{Enabled: false},
	})

	results := e.RetrieveMulti(context.Background(), Request{Query: "q", Type: SearchTypeVector})
	require.Len(t, results, 1)
	assert.Empty(t, rw.queries)
}

func TestRetrieveMulti_NilRewriterDelegatesToRetrieve(t *testing.T) {
	src := &fakeSource{name: "a", results: []*node.Scored{scored("n1", 0.9, node.SourceVector)}}
	e := newTestEngine(t, Options{
		Registry: registryWith(t, src),
		Rewrite:  rewriteEnabled(3),
	})

	results := e.RetrieveMulti(context.Background(), Request{Query: "q", Type: SearchTypeVector})
	assert.Len(t, results, 1)
}

func TestRetrieveMulti_EmbedsEveryVariantAndOriginal(t *testing.T) {
	src := &fakeSource{name: "a", results: []*node.Scored{scored("n1", 0.9, node.SourceVector)}}
	rw := &fakeRewriter{variants: []string{"variant one", "variant two"}}
	emb := &recordingEmbedder{}

	e := newTestEngine(t, Options{
		Registry: registryWith(t, src),
		Embedder: emb,
		Rewriter: rw,
		Rewrite:  rewriteEnabled(2),
	})

	results := e.RetrieveMulti(context.Background(), Request{Query: "original", Type: SearchTypeVector})
	require.Len(t, results, 1)

	emb.mu.Lock()
	defer emb.mu.Unlock()
	assert.ElementsMatch(t, []string{"original", "variant one", "variant two"}, emb.queries)
}

func TestRetrieveMulti_DedupAcrossVariants(t *testing.T) {
	// Every variant hits the same source, so the same node arrives once per
	// variant. Dedup must collapse them to a single entry.
	src := &fakeSource{name: "a", results: []*node.Scored{
		scored("shared", 0.95, node.SourceVector),
		scored("other", 0.4, node.SourceVector),
	}}
	rw := &fakeRewriter{variants: []string{"variant one", "variant two"}}

	e := newTestEngine(t, Options{
		Registry: registryWith(t, src),
		Rewriter: rw,
		Rewrite:  rewriteEnabled(2),
	})

	results := e.RetrieveMulti(context.Background(), Request{Query: "original", Type: SearchTypeVector})
	require.Len(t, results, 2)
	assert.Equal(t, "shared", results[0].Node.ID)
	assert.Equal(t, 0.95, results[0].Score)
	assert.Equal(t, "other", results[1].Node.ID)
}

func TestRetrieveMulti_VariantDuplicatingOriginalRunsOnce(t *testing.T) {
	src := &fakeSource{name: "a", results: []*node.Scored{scored("n1", 0.9, node.SourceVector)}}
	rw := &fakeRewriter{variants: []string{"Original", "fresh angle"}}
	emb := &recordingEmbedder{}

	e := newTestEngine(t, Options{
		Registry: registryWith(t, src),
		Embedder: emb,
		Rewriter: rw,
		Rewrite:  rewriteEnabled(2),
	})

	e.RetrieveMulti(context.Background(), Request{Query: "original", Type: SearchTypeVector})

	emb.mu.Lock()
	defer emb.mu.Unlock()
	// "Original" differs only by case and is folded into the original.
	assert.ElementsMatch(t, []string{"original", "fresh angle"}, emb.queries)
}

func TestRetrieveMulti_ReranksAgainstOriginalQuery(t *testing.T) {
	src := &fakeSource{name: "a", results: []*node.Scored{
		scored("n1", 0.9, node.SourceVector),
	}}
	rw := &fakeRewriter{variants: []string{"some variant"}}

	var rerankQueries []string
	reranker := &queryRecordingReranker{onQuery: func(q string) { rerankQueries = append(rerankQueries, q) }}

	cfg := testSearchConfig()
	cfg.Rerank = true
	e := newTestEngine(t, Options{
		Registry: registryWith(t, src),
		Rewriter: rw,
		Reranker: reranker,
		Search:   cfg,
		Rewrite:  rewriteEnabled(1),
	})

	e.RetrieveMulti(context.Background(), Request{Query: "original", Type: SearchTypeVector})

	require.Len(t, rerankQueries, 1)
	assert.Equal(t, "original", rerankQueries[0])
}

func TestRetrieveMulti_EmptyQueryReturnsEmpty(t *testing.T) {
	rw := &fakeRewriter{variants: []string{"v"}}
	e := newTestEngine(t, Options{
		Registry: registryWith(t, &fakeSource{name: "a"}),
		Rewriter: rw,
		Rewrite:  rewriteEnabled(1),
	})

	results := e.RetrieveMulti(context.Background(), Request{Query: "", Type: SearchTypeVector})
	assert.Empty(t, results)
	assert.Empty(t, rw.queries)
}

func TestRetrieveMulti_TopKAppliedAfterMerge(t *testing.T) {
	src := &fakeSource{name: "a", results: []*node.Scored{
		scored("n1", 0.9, node.SourceVector),
		scored("n2", 0.8, node.SourceVector),
		scored("n3", 0.7, node.SourceVector),
	}}
	rw := &fakeRewriter{variants: []string{"v1", "v2"}}

	e := newTestEngine(t, Options{
		Registry: registryWith(t, src),
		Rewriter: rw,
		Rewrite:  rewriteEnabled(2),
	})

	results := e.RetrieveMulti(context.Background(), Request{Query: "q", Type: SearchTypeVector, TopK: 2})
	require.Len(t, results, 2)
	assert.Equal(t, "n1", results[0].Node.ID)
	assert.Equal(t, "n2", results[1].Node.ID)
}

func TestUnionOriginal(t *testing.T) {
	tests := []struct {
		name     string
		variants []string
		original string
		want     []string
	}{
		{
			name:     "original first",
			variants: []string{"a", "b"},
			original: "q",
			want:     []string{"q", "a", "b"},
		},
		{
			name:     "case insensitive dedup",
			variants: []string{"Q", "a", "A"},
			original: "q",
			want:     []string{"q", "a"},
		},
		{
			name:     "blank variants dropped",
			variants: []string{"", "  ", "a"},
			original: "q",
			want:     []string{"q", "a"},
		},
		{
			name:     "no variants",
			variants: nil,
			original: "q",
			want:     []string{"q"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unionOriginal(tt.variants, tt.original))
		})
	}
}

// queryRecordingReranker records the query passed to Rerank and returns the
// documents in their incoming order with descending scores.
type queryRecordingReranker struct {
	onQuery func(string)
}

func (r *queryRecordingReranker) Rerank(_ context.Context, query string, documents []string, topK int) ([]rerank.Result, error) {
	r.onQuery(query)
	results := make([]rerank.Result, len(documents))
	for i, doc := range documents {
		results[i] = rerank.Result{Index: i, Score: 1.0 - float64(i)*0.01, Document: doc}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (r *queryRecordingReranker) Available(context.Context) bool { return true }
func (r *queryRecordingReranker) Close() error                   { return nil }
