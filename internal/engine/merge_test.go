package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/internal/node"
)

func scored(id string, score float64, source node.Source) *node.Scored {
	return &node.Scored{
		Node:   &node.TextNode{ID: id, Text: "text for " + id},
		Score:  score,
		Source: source,
	}
}

func TestMergeCandidates_DedupKeepsHighestScore(t *testing.T) {
	// Two variants return the same node with different scores.
	merged := mergeCandidates(
		[]*node.Scored{scored("a", 0.9, node.SourceVector)},
		[]*node.Scored{scored("a", 0.95, node.SourceVector)},
	)

	require.Len(t, merged, 1)
	assert.Equal(t, "a", merged[0].Node.ID)
	assert.Equal(t, 0.95, merged[0].Score)
}

func TestMergeCandidates_SortsByScoreDescending(t *testing.T) {
	merged := mergeCandidates([]*node.Scored{
		scored("low", 0.1, node.SourceVector),
		scored("high", 0.9, node.SourceVector),
		scored("mid", 0.5, node.SourceKeyword),
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "high", merged[0].Node.ID)
	assert.Equal(t, "mid", merged[1].Node.ID)
	assert.Equal(t, "low", merged[2].Node.ID)
}

func TestMergeCandidates_DeterministicTieBreak(t *testing.T) {
	lists := [][]*node.Scored{
		{scored("zz", 0.5, node.SourceVector)},
		{scored("aa", 0.5, node.SourceVector)},
	}

	first := mergeCandidates(lists...)
	// Reversed arrival order must not change the merged order.
	second := mergeCandidates(lists[1], lists[0])

	require.Len(t, first, 2)
	assert.Equal(t, "aa", first[0].Node.ID)
	assert.Equal(t, "zz", first[1].Node.ID)
	assert.Equal(t, first[0].Node.ID, second[0].Node.ID)
	assert.Equal(t, first[1].Node.ID, second[1].Node.ID)
}

func TestMergeCandidates_Empty(t *testing.T) {
	assert.Empty(t, mergeCandidates())
	assert.Empty(t, mergeCandidates(nil, []*node.Scored{}))
}

func TestApplyMinScore(t *testing.T) {
	candidates := []*node.Scored{
		scored("a", 0.9, node.SourceVector),
		scored("b", 0.4, node.SourceVector),
		scored("c", 0.1, node.SourceVector),
	}

	kept := applyMinScore(candidates, 0.4)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].Node.ID)
	assert.Equal(t, "b", kept[1].Node.ID)
}

func TestApplyMinScore_ZeroKeepsAll(t *testing.T) {
	candidates := []*node.Scored{scored("a", -0.5, node.SourceVector)}
	assert.Len(t, applyMinScore(candidates, 0), 1)
}

func TestTruncate(t *testing.T) {
	candidates := []*node.Scored{
		scored("a", 0.9, node.SourceVector),
		scored("b", 0.8, node.SourceVector),
	}

	assert.Len(t, truncate(candidates, 1), 1)
	assert.Len(t, truncate(candidates, 5), 2)
	assert.Len(t, truncate(candidates, 0), 2)
}

func TestNodeCache_KeyOrderInsensitive(t *testing.T) {
	c := newNodeCache(4)
	nodes := []*node.TextNode{{ID: "n1", Text: "t"}}

	c.put([]string{"b", "a"}, nodes)

	got, ok := c.get([]string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, nodes, got)

	c.invalidate()
	_, ok = c.get([]string{"a", "b"})
	assert.False(t, ok)
}
