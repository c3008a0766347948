package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/lodestone-kb/lodestone/internal/node"
)

const (
	contentField  = "__content"
	metadataField = "__metadata"
	vectorField   = "vector"
	// scoreField is where RediSearch puts the KNN distance for a vector
	// field named "vector".
	scoreField = "__vector_score"

	listPageSize = 1000
)

// RedisConfig configures a Redis-backed datasource.
type RedisConfig struct {
	Name       string
	Addrs      []string
	Username   string
	Password   string
	DB         int
	Prefix     string
	Dimensions int
}

// Redis is a datasource backed by Redis 8+ with the RediSearch module. It
// indexes node text and vectors in one FT index, so it supports native
// hybrid search (text-filtered KNN) server-side.
type Redis struct {
	client rueidis.Client
	name   string
	prefix string
	index  string
	dims   int
}

var (
	_ Datasource     = (*Redis)(nil)
	_ HybridSearcher = (*Redis)(nil)
	_ Writer         = (*Redis)(nil)
)

// NewRedis connects to Redis and ensures the search index exists.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("redis datasource requires a name")
	}
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis datasource requires addrs")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("redis datasource requires positive dimensions")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = cfg.Name + ":"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	r := &Redis{
		client: client,
		name:   cfg.Name,
		prefix: cfg.Prefix,
		index:  "idx:" + cfg.Name,
		dims:   cfg.Dimensions,
	}

	if err := r.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return r, nil
}

// ensureIndex creates the FT index if it does not exist yet.
func (r *Redis) ensureIndex(ctx context.Context) error {
	cmd := r.client.B().Arbitrary("FT.INFO").Args(r.index).Build()
	if err := r.client.Do(ctx, cmd).Error(); err == nil {
		return nil
	}

	create := r.client.B().Arbitrary("FT.CREATE").Args(
		r.index, "ON", "HASH", "PREFIX", "1", r.prefix, "SCHEMA",
		contentField, "TEXT",
		vectorField, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(r.dims),
		"DISTANCE_METRIC", "COSINE",
	).Build()

	if err := r.client.Do(ctx, create).Error(); err != nil {
		return fmt.Errorf("create search index %s: %w", r.index, err)
	}
	return nil
}

// Name returns the datasource name.
func (r *Redis) Name() string {
	return r.name
}

// AddNodes upserts nodes with their embeddings as Redis hashes.
func (r *Redis) AddNodes(ctx context.Context, nodes []*node.TextNode, vectors [][]float32) error {
	if len(nodes) != len(vectors) {
		return fmt.Errorf("nodes and vectors length mismatch: %d vs %d", len(nodes), len(vectors))
	}

	for i, n := range nodes {
		if len(vectors[i]) != r.dims {
			return fmt.Errorf("vector for %s has %d dims, want %d", n.ID, len(vectors[i]), r.dims)
		}

		metaJSON, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", n.ID, err)
		}

		cmd := r.client.B().Hset().Key(r.prefix+n.ID).FieldValue().
			FieldValue(contentField, n.Text).
			FieldValue(metadataField, string(metaJSON)).
			FieldValue(vectorField, vectorToBytes(vectors[i])).
			Build()

		if err := r.client.Do(ctx, cmd).Error(); err != nil {
			return fmt.Errorf("store node %s: %w", n.ID, err)
		}
	}

	return nil
}

// VectorSearch runs a KNN query via FT.SEARCH.
func (r *Redis) VectorSearch(ctx context.Context, embedding []float32, topK int, filter node.Filter) ([]*node.Scored, error) {
	return r.search(ctx, "*", embedding, topK, filter, node.SourceVector)
}

// HybridSearch runs a text-filtered KNN query, letting RediSearch combine
// lexical matching and vector similarity server-side.
func (r *Redis) HybridSearch(ctx context.Context, queryText string, embedding []float32, topK int, filter node.Filter) ([]*node.Scored, error) {
	escaped := escapeQuery(queryText)
	prefilter := "*"
	if strings.TrimSpace(escaped) != "" {
		prefilter = fmt.Sprintf("(@%s:(%s))", contentField, escaped)
	}
	return r.search(ctx, prefilter, embedding, topK, filter, node.SourceHybrid)
}

func (r *Redis) search(ctx context.Context, prefilter string, embedding []float32, topK int, filter node.Filter, source node.Source) ([]*node.Scored, error) {
	if len(embedding) != r.dims {
		return nil, fmt.Errorf("query vector has %d dims, want %d", len(embedding), r.dims)
	}
	if topK <= 0 {
		return []*node.Scored{}, nil
	}

	// Metadata filtering happens client-side on the stored JSON, so cast
	// wider when a filter will drop candidates.
	k := topK
	if len(filter) > 0 {
		k = topK * filterOversample
	}

	queryStr := fmt.Sprintf("%s=>[KNN %d @%s $BLOB]", prefilter, k, vectorField)

	cmd := r.client.B().Arbitrary("FT.SEARCH").Args(
		r.index, queryStr,
		"RETURN", "3", contentField, metadataField, scoreField,
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", vectorToBytes(embedding),
		"DIALECT", "2",
	).Build()

	raw, err := r.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.index, err)
	}

	entries, err := r.parseSearchResult(raw)
	if err != nil {
		return nil, err
	}

	results := make([]*node.Scored, 0, topK)
	for _, sn := range entries {
		sn.Source = source
		if !filter.Matches(sn.Node) {
			continue
		}
		results = append(results, sn)
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// parseSearchResult decodes a RESP2 FT.SEARCH reply.
// 2-stride: [total, key1, fields1, key2, fields2, ...]
func (r *Redis) parseSearchResult(raw []rueidis.RedisMessage) ([]*node.Scored, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse result total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	entries := make([]*node.Scored, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fieldMsgs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(fieldMsgs)

		n := &node.TextNode{
			ID:   strings.TrimPrefix(key, r.prefix),
			Text: fields[contentField],
		}
		if metaJSON, ok := fields[metadataField]; ok && metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &n.Metadata)
		}

		score := 0.0
		if scoreStr, ok := fields[scoreField]; ok {
			if dist, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				score = max(0, 1.0-dist) // cosine distance to similarity, clamped
			}
		}

		entries = append(entries, &node.Scored{Node: n, Score: score})
	}

	return entries, nil
}

// ListAllNodes pages through the index with FT.SEARCH.
func (r *Redis) ListAllNodes(ctx context.Context) ([]*node.TextNode, error) {
	var all []*node.TextNode

	for offset := 0; ; offset += listPageSize {
		cmd := r.client.B().Arbitrary("FT.SEARCH").Args(
			r.index, "*",
			"RETURN", "2", contentField, metadataField,
			"LIMIT", strconv.Itoa(offset), strconv.Itoa(listPageSize),
			"DIALECT", "2",
		).Build()

		raw, err := r.client.Do(ctx, cmd).ToArray()
		if err != nil {
			return nil, fmt.Errorf("list nodes from %s: %w", r.index, err)
		}

		entries, err := r.parseSearchResult(raw)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}

		for _, sn := range entries {
			all = append(all, sn.Node)
		}
		if len(entries) < listPageSize {
			break
		}
	}

	return all, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *Redis) Close() error {
	r.client.Close()
	return nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// escapeQuery escapes RediSearch query syntax characters in user text.
var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
