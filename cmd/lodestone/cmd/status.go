package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lodestone-kb/lodestone/internal/rerank"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show retrieval stack status",
		Long: `Show the status of the configured retrieval stack: embedder,
datasources, lexical index, and reranker service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(out, "Embedder:    %s (%d dimensions)\n",
		a.embedder.ModelName(), a.embedder.Dimensions())
	if !a.embedder.Available(ctx) {
		fmt.Fprintln(out, "             provider unreachable")
	}

	names := a.registry.Names()
	fmt.Fprintf(out, "Datasources: %d configured\n", len(names))
	for _, name := range names {
		fmt.Fprintf(out, "  - %s\n", name)
	}

	if err := a.engine.RefreshLexical(ctx, nil, false); err != nil {
		fmt.Fprintf(out, "Lexical:     unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(out, "Lexical:     %d nodes indexed\n", a.lexical.Count())
	}

	// Probing the reranker loads it, which is exactly what status is for.
	_, err = a.reranker.Rerank(ctx, "status probe", []string{"status probe"}, 1)
	switch {
	case errors.Is(err, rerank.ErrUnavailable):
		fmt.Fprintf(out, "Reranker:    unavailable (%s)\n", a.cfg.Reranker.Endpoint)
	case err != nil:
		fmt.Fprintf(out, "Reranker:    error (%v)\n", err)
	default:
		fmt.Fprintf(out, "Reranker:    %s (%s)\n", a.cfg.Reranker.Endpoint, a.cfg.Reranker.Model)
	}

	if a.cfg.Rewrite.Enabled {
		fmt.Fprintf(out, "Rewriter:    enabled (%d variants, %s)\n",
			a.cfg.Rewrite.Variants, a.cfg.LLM.Provider)
	} else {
		fmt.Fprintln(out, "Rewriter:    disabled")
	}

	return nil
}
