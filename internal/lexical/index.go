// Package lexical provides the in-memory BM25 keyword index over a snapshot
// of text nodes. The index is rebuilt wholesale on demand, never mutated in
// place: a rebuild constructs a fresh structure and swaps a single pointer,
// so concurrent readers only ever observe a complete snapshot.
package lexical

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/lodestone-kb/lodestone/internal/node"
)

const (
	// TokenizerName is the name of the registered bleve tokenizer.
	TokenizerName = "kb_tokenizer"

	// StopFilterName is the name of the registered stop word filter.
	StopFilterName = "kb_stop"

	// AnalyzerName is the name of the registered analyzer.
	AnalyzerName = "kb_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(TokenizerName, tokenizerConstructor)
	_ = registry.RegisterTokenFilter(StopFilterName, stopFilterConstructor)
}

// Index is a BM25-style keyword index over an immutable node snapshot.
// Rebuild replaces the snapshot atomically; Search reads whatever snapshot
// is current. The zero value is usable and returns empty results.
type Index struct {
	snap atomic.Pointer[snapshot]
}

// snapshot holds one generation of the index. It is immutable after build.
type snapshot struct {
	index bleve.Index
	nodes map[string]*node.TextNode
	order map[string]int // node ID -> insertion index, for deterministic ties
	count int
}

// indexedDoc is the document shape handed to bleve.
type indexedDoc struct {
	Content string `json:"content"`
}

// New creates an empty lexical index.
func New() *Index {
	return &Index{}
}

// Rebuild tokenizes every node's text and replaces the current index with a
// freshly built one. Previous contents are discarded. Concurrent searches
// keep reading the old snapshot until the swap completes.
func (x *Index) Rebuild(ctx context.Context, nodes []*node.TextNode) error {
	im, err := createIndexMapping()
	if err != nil {
		return fmt.Errorf("create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return fmt.Errorf("create in-memory index: %w", err)
	}

	snap := &snapshot{
		index: idx,
		nodes: make(map[string]*node.TextNode, len(nodes)),
		order: make(map[string]int, len(nodes)),
	}

	batch := idx.NewBatch()
	for i, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// First occurrence of an ID wins, matching merge semantics elsewhere.
		if _, seen := snap.order[n.ID]; seen {
			continue
		}
		if err := batch.Index(n.ID, indexedDoc{Content: n.Text}); err != nil {
			return fmt.Errorf("index node %s: %w", n.ID, err)
		}
		snap.nodes[n.ID] = n
		snap.order[n.ID] = i
		snap.count++
	}

	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}

	// The old snapshot's in-memory index holds no external resources, so the
	// swap alone retires it; in-flight readers finish on their own copy.
	x.snap.Store(snap)
	return nil
}

// Search extracts keywords from the query (falling back to plain tokens),
// scores all indexed nodes, and returns up to topK positive-score results in
// strictly descending score order. Ties break by original insertion index.
// An empty or uninitialized index, or a query with no extractable tokens,
// yields an empty result, not an error.
func (x *Index) Search(ctx context.Context, query string, topK int) ([]*node.Scored, error) {
	snap := x.snap.Load()
	if snap == nil || snap.count == 0 || topK <= 0 {
		return []*node.Scored{}, nil
	}

	keywords := ExtractKeywords(query)
	if len(keywords) == 0 {
		return []*node.Scored{}, nil
	}

	matchQuery := bleve.NewMatchQuery(strings.Join(keywords, " "))
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	// Score the whole snapshot so the insertion-order tie-break is applied
	// over the full candidate set, not a bleve-ordered prefix.
	req.Size = snap.count

	result, err := snap.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	scored := make([]*node.Scored, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Score <= 0 {
			continue
		}
		n, ok := snap.nodes[hit.ID]
		if !ok {
			continue
		}
		scored = append(scored, &node.Scored{
			Node:   n,
			Score:  hit.Score,
			Source: node.SourceKeyword,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return snap.order[scored[i].Node.ID] < snap.order[scored[j].Node.ID]
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	return scored, nil
}

// Count returns the number of nodes in the current snapshot.
func (x *Index) Count() int {
	snap := x.snap.Load()
	if snap == nil {
		return 0
	}
	return snap.count
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TokenizerName,
		"token_filters": []string{
			lowercase.Name,
			StopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	im.DefaultAnalyzer = AnalyzerName
	return im, nil
}

func tokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveTokenizer{}, nil
}

// bleveTokenizer adapts Tokenize to bleve's analysis interface.
type bleveTokenizer struct{}

func (t *bleveTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

func stopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveStopFilter{stopWords: stopWordSet}, nil
}

// bleveStopFilter drops stop words during indexing and query analysis.
type bleveStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, stop := f.stopWords[term]; !stop {
			result = append(result, token)
		}
	}
	return result
}
