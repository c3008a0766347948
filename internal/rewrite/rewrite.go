// Package rewrite expands a search query into semantically related variants
// to improve recall. Variants come from an LLM; any failure falls back to
// the original query so retrieval never breaks on a flaky model.
package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lodestone-kb/lodestone/internal/llm"
)

// Rewriter produces alternate phrasings of a query.
type Rewriter interface {
	// Rewrite returns between 1 and numVariants query strings related to the
	// input. The original query is not guaranteed to be among them; callers
	// union it in when they need it. On any internal failure the original
	// query is returned alone.
	Rewrite(ctx context.Context, query string, numVariants int) []string
}

// LLMRewriter generates variants with a text generation model.
type LLMRewriter struct {
	generator llm.Generator
	domain    string
	logger    *slog.Logger
}

var _ Rewriter = (*LLMRewriter)(nil)

// NewLLMRewriter creates a rewriter backed by the given generator. domain
// optionally tunes the prompt toward a subject area; empty means general.
func NewLLMRewriter(generator llm.Generator, domain string, logger *slog.Logger) *LLMRewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMRewriter{
		generator: generator,
		domain:    domain,
		logger:    logger,
	}
}

// Rewrite asks the model for numVariants rephrasings, one per line.
func (r *LLMRewriter) Rewrite(ctx context.Context, query string, numVariants int) []string {
	if numVariants <= 0 {
		numVariants = 1
	}

	raw, err := r.generator.Generate(ctx, r.prompt(query, numVariants))
	if err != nil {
		r.logger.Warn("query rewrite failed, using original query",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return []string{query}
	}

	variants := parseVariants(raw, numVariants)
	if len(variants) == 0 {
		return []string{query}
	}
	return variants
}

func (r *LLMRewriter) prompt(query string, numVariants int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the following search query into %d alternative phrasings ", numVariants)
	b.WriteString("that preserve its meaning. ")
	if r.domain != "" {
		fmt.Fprintf(&b, "The queries target a %s knowledge base. ", r.domain)
	}
	b.WriteString("Output one query per line with no numbering or commentary.\n\nQuery: ")
	b.WriteString(query)
	return b.String()
}

// parseVariants extracts up to max cleaned variants from model output.
// Lines are trimmed of list markers and quotes; empty lines and duplicates
// are dropped.
func parseVariants(raw string, max int) []string {
	seen := make(map[string]struct{})
	var variants []string

	for _, line := range strings.Split(raw, "\n") {
		v := cleanVariant(line)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
		if len(variants) == max {
			break
		}
	}

	return variants
}

// cleanVariant strips list numbering, bullets, and surrounding quotes.
func cleanVariant(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*• \t")

	// Drop a leading "1." / "2)" style marker.
	if i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }); i > 0 && i < len(s) {
		if s[i] == '.' || s[i] == ')' {
			s = strings.TrimSpace(s[i+1:])
		}
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// NoOpRewriter returns the original query unchanged. Used when rewriting
// is disabled.
type NoOpRewriter struct{}

var _ Rewriter = (*NoOpRewriter)(nil)

// Rewrite returns the query as its only variant.
func (NoOpRewriter) Rewrite(_ context.Context, query string, _ int) []string {
	return []string{query}
}
