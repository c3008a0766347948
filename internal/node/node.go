// Package node defines the retrievable units shared by every retrieval stage:
// immutable text nodes produced by ingestion and the scored wrappers each
// stage attaches its stage-local relevance to.
package node

// Source tags which retrieval stage produced a score.
// Scores from different sources live on different scales (BM25 magnitude,
// cosine similarity, cross-encoder relevance) and are not comparable without
// normalization or reranking.
type Source string

const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
	SourceHybrid  Source = "hybrid"
)

// TextNode is an immutable unit of retrievable text. It is produced by
// ingestion and consumed read-only by the retrieval engine.
type TextNode struct {
	// ID is globally unique within a datasource.
	ID string

	// Text is the node content.
	Text string

	// Metadata carries scalar tags such as doc_id, datasource, file_name.
	Metadata map[string]string
}

// Scored pairs a TextNode with a stage-local relevance score.
type Scored struct {
	Node   *TextNode
	Score  float64
	Source Source
}

// Clone returns a shallow copy with an independent metadata map.
func (n *TextNode) Clone() *TextNode {
	c := &TextNode{ID: n.ID, Text: n.Text}
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
