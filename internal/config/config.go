// Package config loads and validates Lodestone configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Lodestone configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Rewrite     RewriteConfig     `yaml:"rewrite" json:"rewrite"`
	Reranker    RerankerConfig    `yaml:"reranker" json:"reranker"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Datasources []DatasourceConfig `yaml:"datasources" json:"datasources"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// SearchConfig configures the hybrid retrieval engine.
type SearchConfig struct {
	// Rerank toggles cross-encoder reranking by default.
	Rerank bool `yaml:"rerank" json:"rerank"`

	// RerankPoolSize is how many candidates to oversample for the reranker.
	RerankPoolSize int `yaml:"rerank_pool_size" json:"rerank_pool_size"`

	// MinScore drops candidates scoring below it. The threshold is applied
	// AFTER reranking; with reranking disabled it compares against
	// stage-native score scales (BM25 magnitude vs cosine similarity), so a
	// non-zero value without reranking is scale-dependent and caller-beware.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// DefaultTopK is the result count when the request leaves it unset.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`

	// MaxTopK caps the requested result count.
	MaxTopK int `yaml:"max_top_k" json:"max_top_k"`

	// KeywordWeight and VectorWeight are declared for parity with the
	// upstream configuration surface but are not load-bearing in the
	// fusion formula; merge keeps the best per-node score instead.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
}

// RewriteConfig configures LLM query rewriting.
type RewriteConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Variants int    `yaml:"variants" json:"variants"`
	Domain   string `yaml:"domain" json:"domain"`
}

// RerankerConfig configures the cross-encoder reranker service.
type RerankerConfig struct {
	Endpoint string   `yaml:"endpoint" json:"endpoint"`
	Model    string   `yaml:"model" json:"model"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// as well as plain integers (nanoseconds).
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama", "openai", or "static".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// OpenAI-compatible provider settings. The API key comes from
	// LODESTONE_OPENAI_API_KEY or OPENAI_API_KEY, never from the file.
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
}

// LLMConfig configures the chat/LLM capability used by query rewriting.
type LLMConfig struct {
	Provider      string `yaml:"provider" json:"provider"`
	Model         string `yaml:"model" json:"model"`
	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
}

// DatasourceConfig declares one registered datasource.
type DatasourceConfig struct {
	// Name is the unique datasource name.
	Name string `yaml:"name" json:"name"`

	// Type selects the implementation: "local" (HNSW + SQLite) or
	// "redis" (RediSearch, natively hybrid-capable).
	Type string `yaml:"type" json:"type"`

	// Path is the storage directory for local datasources.
	Path string `yaml:"path" json:"path"`

	// Addrs are the Redis addresses for redis datasources.
	Addrs []string `yaml:"addrs" json:"addrs"`

	// Prefix namespaces this datasource's Redis keys.
	Prefix string `yaml:"prefix" json:"prefix"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Rerank:         true,
			RerankPoolSize: 25,
			MinScore:       0,
			DefaultTopK:    10,
			MaxTopK:        100,
			KeywordWeight:  0.35,
			VectorWeight:   0.65,
		},
		Rewrite: RewriteConfig{
			Enabled:  false,
			Variants: 3,
		},
		Reranker: RerankerConfig{
			Timeout: Duration(30 * time.Second),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			BatchSize: 32,
			CacheSize: 4096,
		},
		LLM: LLMConfig{
			Provider: "ollama",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, merging over defaults, then applies
// environment overrides and validates. A missing file is not an error:
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env + defaults.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from LODESTONE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LODESTONE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LODESTONE_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.MinScore = f
		}
	}
	if v := os.Getenv("LODESTONE_RERANK_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.RerankPoolSize = n
		}
	}
	if v := os.Getenv("LODESTONE_RERANK"); v != "" {
		cfg.Search.Rerank = parseBool(v, cfg.Search.Rerank)
	}
	if v := os.Getenv("LODESTONE_REWRITE"); v != "" {
		cfg.Rewrite.Enabled = parseBool(v, cfg.Rewrite.Enabled)
	}
	if v := os.Getenv("LODESTONE_REWRITE_VARIANTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Rewrite.Variants = n
		}
	}
	if v := os.Getenv("LODESTONE_EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("LODESTONE_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
		cfg.LLM.OllamaHost = v
	}
	if v := os.Getenv("LODESTONE_RERANKER_ENDPOINT"); v != "" {
		cfg.Reranker.Endpoint = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

// OpenAIAPIKey resolves the API key for OpenAI-compatible providers.
func OpenAIAPIKey() string {
	if v := os.Getenv("LODESTONE_OPENAI_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("OPENAI_API_KEY")
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Search.RerankPoolSize <= 0 {
		return fmt.Errorf("search.rerank_pool_size must be positive, got %d", c.Search.RerankPoolSize)
	}
	if c.Search.DefaultTopK <= 0 {
		return fmt.Errorf("search.default_top_k must be positive, got %d", c.Search.DefaultTopK)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("search.max_top_k (%d) must be >= default_top_k (%d)",
			c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Rewrite.Variants <= 0 {
		return fmt.Errorf("rewrite.variants must be positive, got %d", c.Rewrite.Variants)
	}
	if w := c.Search.KeywordWeight + c.Search.VectorWeight; w != 0 && (w < 0.99 || w > 1.01) {
		return fmt.Errorf("search keyword/vector weights must sum to 1.0, got %.2f", w)
	}

	seen := make(map[string]struct{}, len(c.Datasources))
	for _, ds := range c.Datasources {
		if ds.Name == "" {
			return fmt.Errorf("datasource name must not be empty")
		}
		if _, dup := seen[ds.Name]; dup {
			return fmt.Errorf("duplicate datasource name %q", ds.Name)
		}
		seen[ds.Name] = struct{}{}
		switch ds.Type {
		case "local", "redis":
		default:
			return fmt.Errorf("datasource %q: unknown type %q", ds.Name, ds.Type)
		}
	}

	return nil
}
