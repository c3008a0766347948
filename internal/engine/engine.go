// Package engine implements hybrid retrieval: per-datasource vector,
// keyword, and native hybrid search, candidate fusion, query-variant
// fan-out, and cross-encoder reranking.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-kb/lodestone/internal/config"
	"github.com/lodestone-kb/lodestone/internal/datasource"
	"github.com/lodestone-kb/lodestone/internal/lexical"
	"github.com/lodestone-kb/lodestone/internal/node"
	"github.com/lodestone-kb/lodestone/internal/rerank"
	"github.com/lodestone-kb/lodestone/internal/rewrite"
)

// SearchType selects the retrieval mode.
type SearchType string

const (
	// SearchTypeVector retrieves by embedding similarity across all
	// resolved datasources.
	SearchTypeVector SearchType = "vector"
	// SearchTypeKeyword retrieves from the BM25 lexical index.
	SearchTypeKeyword SearchType = "keyword"
	// SearchTypeHybrid retrieves with a datasource's native hybrid search,
	// falling back to vector when the datasource has none.
	SearchTypeHybrid SearchType = "hybrid"
)

// Request is a single retrieval request.
type Request struct {
	// Query is the search text.
	Query string

	// Type selects the retrieval mode (default: hybrid).
	Type SearchType

	// TopK caps the result count. Zero uses the configured default.
	TopK int

	// Filter restricts candidates by metadata.
	Filter node.Filter

	// DatasourceNames restricts which datasources are searched. Empty
	// resolves the default set.
	DatasourceNames []string

	// Rerank overrides the configured rerank toggle when set.
	Rerank *bool

	// MinScore overrides the configured minimum score when set.
	MinScore *float64
}

// Engine orchestrates retrieval across datasources, the lexical index, the
// reranker, and the query rewriter. Construct one at startup and share it;
// it holds no per-request state.
type Engine struct {
	registry *datasource.Registry
	lexical  *lexical.Index
	embedder Embedder
	reranker rerank.Reranker
	rewriter rewrite.Rewriter

	searchCfg  config.SearchConfig
	rewriteCfg config.RewriteConfig

	cache  *nodeCache
	logger *slog.Logger
}

// Embedder is the embedding capability the engine needs: text to vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures a new Engine.
type Options struct {
	Registry *datasource.Registry
	Lexical  *lexical.Index
	Embedder Embedder
	Reranker rerank.Reranker
	Rewriter rewrite.Rewriter
	Search   config.SearchConfig
	Rewrite  config.RewriteConfig
	Logger   *slog.Logger
}

// New creates a retrieval engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Search
	if cfg.RerankPoolSize <= 0 {
		cfg.RerankPoolSize = 25
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 100
	}

	return &Engine{
		registry:   opts.Registry,
		lexical:    opts.Lexical,
		embedder:   opts.Embedder,
		reranker:   opts.Reranker,
		rewriter:   opts.Rewriter,
		searchCfg:  cfg,
		rewriteCfg: opts.Rewrite,
		cache:      newNodeCache(defaultNodeCacheSize),
		logger:     logger,
	}
}

// Retrieve runs the full retrieval state machine and never propagates
// pipeline failures: if the requested mode fails, it retries once with
// plain vector search, and returns an empty list if that fails too.
func (e *Engine) Retrieve(ctx context.Context, req Request) []*node.Scored {
	start := time.Now()

	results, err := e.retrieve(ctx, req, e.searchType(req))
	if err != nil {
		e.logger.Warn("retrieval pipeline failed, retrying with vector search",
			slog.String("query", req.Query),
			slog.String("type", string(e.searchType(req))),
			slog.String("error", err.Error()))

		results, err = e.retrieve(ctx, req, SearchTypeVector)
		if err != nil {
			e.logger.Warn("vector fallback failed, returning empty results",
				slog.String("query", req.Query),
				slog.String("error", err.Error()))
			return []*node.Scored{}
		}
	}

	e.logger.Debug("retrieve_complete",
		slog.String("query", req.Query),
		slog.String("type", string(e.searchType(req))),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results
}

func (e *Engine) searchType(req Request) SearchType {
	if req.Type == "" {
		return SearchTypeHybrid
	}
	return req.Type
}

// retrieve runs one pass of the pipeline for a single search type.
func (e *Engine) retrieve(ctx context.Context, req Request, searchType SearchType) ([]*node.Scored, error) {
	candidates, params, err := e.gatherCandidates(ctx, req, searchType)
	if err != nil {
		return nil, err
	}

	return e.finalize(ctx, req.Query, candidates, params), nil
}

// requestParams are the per-request knobs after defaults are applied.
type requestParams struct {
	topK     int
	rerank   bool
	minScore float64
	poolSize int
}

func (e *Engine) params(req Request) requestParams {
	p := requestParams{
		topK:     req.TopK,
		rerank:   e.searchCfg.Rerank,
		minScore: e.searchCfg.MinScore,
	}
	if p.topK <= 0 {
		p.topK = e.searchCfg.DefaultTopK
	}
	if p.topK > e.searchCfg.MaxTopK {
		p.topK = e.searchCfg.MaxTopK
	}
	if req.Rerank != nil {
		p.rerank = *req.Rerank
	}
	if req.MinScore != nil {
		p.minScore = *req.MinScore
	}

	// Oversample so the reranker sees a meaningful pool.
	p.poolSize = p.topK
	if p.rerank && e.searchCfg.RerankPoolSize > p.poolSize {
		p.poolSize = e.searchCfg.RerankPoolSize
	}
	return p
}

// gatherCandidates runs datasource resolution and per-mode retrieval,
// returning the pre-rerank candidate pool.
func (e *Engine) gatherCandidates(ctx context.Context, req Request, searchType SearchType) ([]*node.Scored, requestParams, error) {
	params := e.params(req)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []*node.Scored{}, params, nil
	}

	var (
		candidates []*node.Scored
		err        error
	)
	switch searchType {
	case SearchTypeKeyword:
		candidates, err = e.lexical.Search(ctx, query, params.poolSize)
	case SearchTypeVector:
		candidates, err = e.vectorSearch(ctx, query, req.Filter, req.DatasourceNames, params.poolSize)
	case SearchTypeHybrid:
		candidates, err = e.hybridSearch(ctx, query, req.Filter, req.DatasourceNames, params.poolSize)
	default:
		candidates, err = e.hybridSearch(ctx, query, req.Filter, req.DatasourceNames, params.poolSize)
	}
	if err != nil {
		return nil, params, err
	}

	return candidates, params, nil
}

// finalize reranks, applies the score floor, and truncates.
func (e *Engine) finalize(ctx context.Context, query string, candidates []*node.Scored, params requestParams) []*node.Scored {
	if params.rerank && len(candidates) > 0 {
		candidates = e.rerankCandidates(ctx, query, candidates)
	}

	candidates = applyMinScore(candidates, params.minScore)
	return truncate(candidates, params.topK)
}

// vectorSearch embeds the query once and fans out to every resolved
// datasource. A datasource failure degrades that source to empty results
// rather than failing the request.
func (e *Engine) vectorSearch(ctx context.Context, query string, filter node.Filter, names []string, poolSize int) ([]*node.Scored, error) {
	resolved, missing, err := e.registry.Resolve(names)
	if err != nil {
		return nil, err
	}
	for _, name := range missing {
		e.logger.Warn("datasource not found, skipping",
			slog.String("datasource", name))
	}
	if len(resolved) == 0 {
		return []*node.Scored{}, nil
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	lists := make([][]*node.Scored, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	for i, ds := range resolved {
		g.Go(func() error {
			results, err := ds.VectorSearch(gctx, embedding, poolSize, filter)
			if err != nil {
				e.logger.Warn("vector search failed on datasource, skipping",
					slog.String("datasource", ds.Name()),
					slog.String("error", err.Error()))
				return nil
			}
			lists[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeCandidates(lists...), nil
}

// hybridSearch resolves a single datasource and runs its native hybrid
// query. Datasources without native hybrid capability degrade to vector
// search with a log line.
func (e *Engine) hybridSearch(ctx context.Context, query string, filter node.Filter, names []string, poolSize int) ([]*node.Scored, error) {
	ds, err := e.resolveHybridTarget(names)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return []*node.Scored{}, nil
	}

	hs, ok := ds.(datasource.HybridSearcher)
	if !ok {
		e.logger.Info("datasource has no native hybrid search, falling back to vector",
			slog.String("datasource", ds.Name()))
		return e.vectorSearch(ctx, query, filter, []string{ds.Name()}, poolSize)
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	return hs.HybridSearch(ctx, query, embedding, poolSize, filter)
}

// resolveHybridTarget picks the single datasource used by hybrid mode:
// the first requested name, or the first registered source advertising
// native hybrid capability, or the first registered source. Returns nil
// when the requested name does not exist (graceful empty result).
func (e *Engine) resolveHybridTarget(names []string) (datasource.Datasource, error) {
	if len(names) > 1 {
		// Native hybrid search runs against one datasource.
		e.logger.Warn("hybrid search supports a single datasource, using the first",
			slog.String("selected", names[0]),
			slog.Int("requested", len(names)))
	}

	if len(names) > 0 {
		ds, err := e.registry.Get(names[0])
		if err != nil {
			e.logger.Warn("datasource not found for hybrid search",
				slog.String("datasource", names[0]))
			return nil, nil
		}
		return ds, nil
	}

	all, _, err := e.registry.Resolve(nil)
	if err != nil {
		return nil, err
	}
	for _, ds := range all {
		if _, ok := ds.(datasource.HybridSearcher); ok {
			return ds, nil
		}
	}
	return all[0], nil
}

// rerankCandidates re-scores candidates against the query with the
// cross-encoder. An unavailable or failing reranker keeps stage-native
// scores; that is a valid operating mode, not an error.
func (e *Engine) rerankCandidates(ctx context.Context, query string, candidates []*node.Scored) []*node.Scored {
	if e.reranker == nil {
		return candidates
	}

	documents := make([]string, len(candidates))
	for i, sn := range candidates {
		documents[i] = sn.Node.Text
	}

	results, err := e.reranker.Rerank(ctx, query, documents, 0)
	if err != nil {
		if errors.Is(err, rerank.ErrUnavailable) {
			e.logger.Debug("reranker unavailable, keeping stage-native scores")
		} else {
			e.logger.Warn("rerank failed, keeping stage-native scores",
				slog.String("error", err.Error()))
		}
		return candidates
	}

	reranked := make([]*node.Scored, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		sn := candidates[res.Index]
		reranked = append(reranked, &node.Scored{
			Node:   sn.Node,
			Score:  res.Score,
			Source: sn.Source,
		})
	}
	sortCandidates(reranked)
	return reranked
}

// RefreshLexical rebuilds the lexical index from the nodes of the resolved
// datasources. force discards the node listing cache first.
func (e *Engine) RefreshLexical(ctx context.Context, names []string, force bool) error {
	resolved, missing, err := e.registry.Resolve(names)
	if err != nil {
		return err
	}
	for _, name := range missing {
		e.logger.Warn("datasource not found, excluded from lexical index",
			slog.String("datasource", name))
	}

	resolvedNames := make([]string, len(resolved))
	for i, ds := range resolved {
		resolvedNames[i] = ds.Name()
	}

	if force {
		e.cache.invalidate()
	}

	nodes, ok := e.cache.get(resolvedNames)
	if !ok {
		for _, ds := range resolved {
			listed, err := ds.ListAllNodes(ctx)
			if err != nil {
				return err
			}
			nodes = append(nodes, listed...)
		}
		e.cache.put(resolvedNames, nodes)
	}

	if err := e.lexical.Rebuild(ctx, nodes); err != nil {
		return err
	}

	e.logger.Info("lexical index rebuilt",
		slog.Int("nodes", len(nodes)),
		slog.Int("datasources", len(resolved)))
	return nil
}

// ResetReranker clears a cached reranker load failure so the next retrieval
// attempts the load again.
func (e *Engine) ResetReranker() {
	if lazy, ok := e.reranker.(*rerank.LazyReranker); ok {
		lazy.Reset()
	}
}
