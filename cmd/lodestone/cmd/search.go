package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lodestone-kb/lodestone/internal/engine"
	"github.com/lodestone-kb/lodestone/internal/node"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit       int
	searchType  string // "hybrid", "vector", "keyword"
	datasources []string
	filters     []string // key=value metadata filters
	format      string   // "text", "json"
	minScore    float64
	noRerank    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search registered datasources with hybrid retrieval.

Hybrid mode runs the datasource's native combined text and vector query,
falling back to vector similarity when the datasource has no native
hybrid support. Results are reranked with the cross-encoder when the
reranker service is reachable.

Examples:
  lodestone search "how do I rotate credentials"
  lodestone search "quota limits" --type keyword --limit 5
  lodestone search "deployment runbook" --datasource docs --filter team=platform
  lodestone search "incident response" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 uses the configured default)")
	cmd.Flags().StringVarP(&opts.searchType, "type", "t", "hybrid", "Search type: hybrid, vector, keyword")
	cmd.Flags().StringSliceVarP(&opts.datasources, "datasource", "d", nil, "Restrict to named datasources (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.filters, "filter", "f", nil, "Metadata filter as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", -1, "Minimum post-rerank score (overrides config when >= 0)")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Skip cross-encoder reranking")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()

	filter, err := parseFilter(opts.filters)
	if err != nil {
		return err
	}

	searchType, err := parseSearchType(opts.searchType)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Keyword and hybrid-fallback retrieval need the lexical index.
	if err := a.engine.RefreshLexical(ctx, opts.datasources, false); err != nil {
		slog.Warn("lexical index refresh failed, keyword search degraded",
			slog.String("error", err.Error()))
	}

	req := engine.Request{
		Query:           query,
		Type:            searchType,
		TopK:            opts.limit,
		Filter:          filter,
		DatasourceNames: opts.datasources,
	}
	if opts.noRerank {
		rerank := false
		req.Rerank = &rerank
	}
	if opts.minScore >= 0 {
		req.MinScore = &opts.minScore
	}

	results := a.engine.RetrieveMulti(ctx, req)

	switch opts.format {
	case "json":
		return formatJSON(cmd, results)
	default:
		return formatText(cmd, query, results)
	}
}

// parseFilter converts key=value flags into a metadata filter.
func parseFilter(pairs []string) (node.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(node.Filter, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}

func parseSearchType(s string) (engine.SearchType, error) {
	switch strings.ToLower(s) {
	case "", "hybrid":
		return engine.SearchTypeHybrid, nil
	case "vector":
		return engine.SearchTypeVector, nil
	case "keyword":
		return engine.SearchTypeKeyword, nil
	default:
		return "", fmt.Errorf("unknown search type %q, expected hybrid, vector, or keyword", s)
	}
}

// formatText outputs results in human-readable form.
func formatText(cmd *cobra.Command, query string, results []*node.Scored) error {
	out := cmd.OutOrStdout()

	if len(results) == 0 {
		fmt.Fprintf(out, "No results found for %q\n", query)
		return nil
	}

	fmt.Fprintf(out, "Found %d results for %q:\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s (score: %.3f, source: %s)\n", i+1, r.Node.ID, r.Score, r.Source)
		for _, line := range snippet(r.Node.Text, 3) {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// formatJSON outputs results as a JSON array.
func formatJSON(cmd *cobra.Command, results []*node.Scored) error {
	type jsonResult struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Source   string            `json:"source"`
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}

	output := make([]jsonResult, 0, len(results))
	for _, r := range results {
		output = append(output, jsonResult{
			ID:       r.Node.ID,
			Score:    r.Score,
			Source:   string(r.Source),
			Text:     r.Node.Text,
			Metadata: r.Node.Metadata,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// snippet returns the first n non-trailing-blank lines of content.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
