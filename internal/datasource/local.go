package datasource

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite"

	"github.com/lodestone-kb/lodestone/internal/node"
)

// Local HNSW parameter defaults.
const (
	defaultM        = 16
	defaultEfSearch = 20

	// filterOversample is how much wider vector search casts when a
	// metadata filter will drop candidates afterwards.
	filterOversample = 3
)

// LocalConfig configures a local datasource.
type LocalConfig struct {
	Name       string
	Path       string
	Dimensions int
	M          int
	EfSearch   int
}

// Local is a datasource backed by an in-process HNSW graph for vectors and
// a SQLite database for node text and metadata. SQLite is the durable copy;
// the graph and node map are rebuilt from it on open.
type Local struct {
	name string
	dims int
	db   *sql.DB

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	nodes   map[string]*node.TextNode
	order   []string
	closed  bool
}

var (
	_ Datasource = (*Local)(nil)
	_ Writer     = (*Local)(nil)
)

// NewLocal opens or creates a local datasource at cfg.Path.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("local datasource requires a name")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("local datasource requires positive dimensions")
	}
	if cfg.M == 0 {
		cfg.M = defaultM
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = defaultEfSearch
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create datasource directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.Path, "nodes.db"))
	if err != nil {
		return nil, fmt.Errorf("open node store: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			id       TEXT PRIMARY KEY,
			seq      INTEGER NOT NULL,
			text     TEXT NOT NULL,
			metadata TEXT NOT NULL,
			vector   BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_seq ON nodes(seq);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create node table: %w", err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	l := &Local{
		name:   cfg.Name,
		dims:   cfg.Dimensions,
		db:     db,
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		nodes:  make(map[string]*node.TextNode),
	}

	if err := l.loadFromDB(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return l, nil
}

// loadFromDB rebuilds the graph and node map from SQLite.
func (l *Local) loadFromDB() error {
	rows, err := l.db.Query(`SELECT id, text, metadata, vector FROM nodes ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, text, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &text, &metaJSON, &blob); err != nil {
			return fmt.Errorf("scan node row: %w", err)
		}

		var metadata map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
			return fmt.Errorf("decode metadata for %s: %w", id, err)
		}

		vec := bytesToVector(blob)
		if len(vec) != l.dims {
			return fmt.Errorf("stored vector for %s has %d dims, want %d", id, len(vec), l.dims)
		}

		l.addToGraph(id, vec)
		l.nodes[id] = &node.TextNode{ID: id, Text: text, Metadata: metadata}
		l.order = append(l.order, id)
	}
	return rows.Err()
}

// addToGraph inserts a vector under a fresh key. Re-adding an existing ID
// orphans the old key instead of deleting from the graph; deleting the last
// node breaks coder/hnsw.
func (l *Local) addToGraph(id string, vec []float32) {
	if existingKey, exists := l.idMap[id]; exists {
		delete(l.keyMap, existingKey)
		delete(l.idMap, id)
	}

	key := l.nextKey
	l.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	l.graph.Add(hnsw.MakeNode(key, normalized))
	l.idMap[id] = key
	l.keyMap[key] = id
}

// Name returns the datasource name.
func (l *Local) Name() string {
	return l.name
}

// AddNodes upserts nodes with their embeddings.
func (l *Local) AddNodes(ctx context.Context, nodes []*node.TextNode, vectors [][]float32) error {
	if len(nodes) != len(vectors) {
		return fmt.Errorf("nodes and vectors length mismatch: %d vs %d", len(nodes), len(vectors))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("datasource is closed")
	}

	for _, v := range vectors {
		if len(v) != l.dims {
			return fmt.Errorf("vector has %d dims, want %d", len(v), l.dims)
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin node upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, seq, text, metadata, vector) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text=excluded.text, metadata=excluded.metadata, vector=excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("prepare node upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	seq := len(l.order)
	for i, n := range nodes {
		metaJSON, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, n.ID, seq+i, n.Text, string(metaJSON), []byte(vectorToBytes(vectors[i]))); err != nil {
			return fmt.Errorf("upsert node %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit node upsert: %w", err)
	}

	for i, n := range nodes {
		l.addToGraph(n.ID, vectors[i])
		if _, exists := l.nodes[n.ID]; !exists {
			l.order = append(l.order, n.ID)
		}
		l.nodes[n.ID] = n.Clone()
	}

	return nil
}

// VectorSearch finds the topK nearest nodes. When a filter is present the
// graph search oversamples so post-filtering still fills topK.
func (l *Local) VectorSearch(_ context.Context, embedding []float32, topK int, filter node.Filter) ([]*node.Scored, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("datasource is closed")
	}
	if len(embedding) != l.dims {
		return nil, fmt.Errorf("query vector has %d dims, want %d", len(embedding), l.dims)
	}
	if topK <= 0 || l.graph.Len() == 0 {
		return []*node.Scored{}, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	normalizeVectorInPlace(query)

	k := topK
	if len(filter) > 0 {
		k = min(topK*filterOversample, len(l.idMap))
	}

	found := l.graph.Search(query, k)

	results := make([]*node.Scored, 0, topK)
	for _, gn := range found {
		id, ok := l.keyMap[gn.Key]
		if !ok {
			// Orphaned key from an upsert; skip.
			continue
		}
		n, ok := l.nodes[id]
		if !ok || !filter.Matches(n) {
			continue
		}

		distance := l.graph.Distance(query, gn.Value)
		results = append(results, &node.Scored{
			Node:   n.Clone(),
			Score:  cosineDistanceToScore(distance),
			Source: node.SourceVector,
		})
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// ListAllNodes returns every node in insertion order.
func (l *Local) ListAllNodes(_ context.Context) ([]*node.TextNode, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("datasource is closed")
	}

	all := make([]*node.TextNode, 0, len(l.order))
	for _, id := range l.order {
		all = append(all, l.nodes[id].Clone())
	}
	return all, nil
}

// Count returns the number of stored nodes.
func (l *Local) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.nodes)
}

// Close closes the underlying node store.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// cosineDistanceToScore converts cosine distance (0..2) to similarity (0..1).
func cosineDistanceToScore(distance float32) float64 {
	return float64(1.0 - distance/2.0)
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// vectorToBytes encodes a vector as little-endian float32 bytes, the layout
// RediSearch expects for KNN blobs and the one SQLite stores.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
