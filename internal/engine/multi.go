package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-kb/lodestone/internal/node"
)

// variantParallelism caps concurrent variant retrievals.
const variantParallelism = 4

// RetrieveMulti fans the query out through the rewriter, retrieves a
// candidate pool per variant, merges them with node-level deduplication,
// reranks the pool once against the ORIGINAL query, and truncates. With
// rewriting disabled it behaves exactly like Retrieve.
func (e *Engine) RetrieveMulti(ctx context.Context, req Request) []*node.Scored {
	if !e.rewriteCfg.Enabled || e.rewriter == nil {
		return e.Retrieve(ctx, req)
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []*node.Scored{}
	}

	start := time.Now()

	results, err := e.retrieveMulti(ctx, req, query)
	if err != nil {
		e.logger.Warn("multi-query retrieval failed, retrying with vector search",
			slog.String("query", query),
			slog.String("error", err.Error()))

		results, err = e.retrieve(ctx, req, SearchTypeVector)
		if err != nil {
			e.logger.Warn("vector fallback failed, returning empty results",
				slog.String("query", query),
				slog.String("error", err.Error()))
			return []*node.Scored{}
		}
	}

	e.logger.Debug("retrieve_multi_complete",
		slog.String("query", query),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results
}

func (e *Engine) retrieveMulti(ctx context.Context, req Request, query string) ([]*node.Scored, error) {
	variants := e.rewriter.Rewrite(ctx, query, e.rewriteCfg.Variants)
	variants = unionOriginal(variants, query)

	e.logger.Debug("query_variants",
		slog.String("original", query),
		slog.Int("variants", len(variants)))

	searchType := e.searchType(req)
	params := e.params(req)

	// One candidate pool per variant. Pools land at their variant's index
	// so the merge below is deterministic regardless of completion order.
	pools := make([][]*node.Scored, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, variantParallelism)

	for i, variant := range variants {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			variantReq := req
			variantReq.Query = variant
			candidates, _, err := e.gatherCandidates(gctx, variantReq, searchType)
			if err != nil {
				// One bad variant degrades to an empty pool; the others
				// still contribute.
				e.logger.Warn("variant retrieval failed, skipping",
					slog.String("variant", variant),
					slog.String("error", err.Error()))
				return nil
			}
			pools[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeCandidates(pools...)
	if len(merged) == 0 {
		return []*node.Scored{}, nil
	}

	// Rerank against the original query, never a rewritten variant.
	return e.finalize(ctx, query, merged, params), nil
}

// unionOriginal puts the original query first and appends variants that
// differ from it, deduplicating case-insensitively.
func unionOriginal(variants []string, original string) []string {
	out := []string{original}
	seen := map[string]struct{}{strings.ToLower(original): {}}

	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
