package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lodestone-kb/lodestone/internal/config"
	"github.com/lodestone-kb/lodestone/internal/datasource"
	"github.com/lodestone-kb/lodestone/internal/embed"
	"github.com/lodestone-kb/lodestone/internal/engine"
	"github.com/lodestone-kb/lodestone/internal/lexical"
	"github.com/lodestone-kb/lodestone/internal/llm"
	"github.com/lodestone-kb/lodestone/internal/logging"
	"github.com/lodestone-kb/lodestone/internal/rerank"
	"github.com/lodestone-kb/lodestone/internal/rewrite"
)

// app bundles the wired retrieval stack for a single CLI invocation.
type app struct {
	cfg      *config.Config
	engine   *engine.Engine
	embedder embed.Embedder
	registry *datasource.Registry
	lexical  *lexical.Index
	reranker *rerank.LazyReranker
}

// buildApp loads configuration and wires the full retrieval stack:
// embedder, datasources, lexical index, reranker, and rewriter.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// The config file may route logs to a file or raise the level; the
	// --debug flag wins.
	if !debugMode && (cfg.Logging.Level != "" || cfg.Logging.File != "") {
		logCfg := logging.DefaultConfig()
		if cfg.Logging.Level != "" {
			logCfg.Level = cfg.Logging.Level
		}
		logCfg.FilePath = cfg.Logging.File
		if cleanup, err := logging.SetupDefault(logCfg); err == nil {
			if loggingCleanup != nil {
				prev := loggingCleanup
				loggingCleanup = func() { cleanup(); prev() }
			} else {
				loggingCleanup = cleanup
			}
		}
	}

	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	registry, err := datasource.NewRegistryFromConfig(ctx, cfg.Datasources, embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("register datasources: %w", err)
	}

	reranker := rerank.NewLazyReranker(func(ctx context.Context) (rerank.Reranker, error) {
		return rerank.NewHTTPReranker(ctx, rerank.HTTPConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
			Timeout:  cfg.Reranker.Timeout.Std(),
		})
	}, slog.Default())

	var rewriter rewrite.Rewriter
	if cfg.Rewrite.Enabled {
		generator, err := llm.New(cfg.LLM)
		if err != nil {
			slog.Warn("llm generator unavailable, query rewriting disabled",
				slog.String("error", err.Error()))
		} else {
			rewriter = rewrite.NewLLMRewriter(generator, cfg.Rewrite.Domain, slog.Default())
		}
	}

	lex := lexical.New()

	eng := engine.New(engine.Options{
		Registry: registry,
		Lexical:  lex,
		Embedder: embedder,
		Reranker: reranker,
		Rewriter: rewriter,
		Search:   cfg.Search,
		Rewrite:  cfg.Rewrite,
		Logger:   slog.Default(),
	})

	return &app{
		cfg:      cfg,
		engine:   eng,
		embedder: embedder,
		registry: registry,
		lexical:  lex,
		reranker: reranker,
	}, nil
}

func (a *app) Close() {
	_ = a.reranker.Close()
	_ = a.registry.Close()
	_ = a.embedder.Close()
}
