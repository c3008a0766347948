package engine

import (
	"sort"

	"github.com/lodestone-kb/lodestone/internal/node"
)

// mergeCandidates combines candidate lists into one deduplicated pool.
// When the same node ID appears more than once, only the highest-scoring
// occurrence survives. The result is sorted by score descending with
// deterministic tie-breaks (source, then node ID), so merge order never
// depends on which stage or variant finished first.
func mergeCandidates(lists ...[]*node.Scored) []*node.Scored {
	best := make(map[string]*node.Scored)

	for _, list := range lists {
		for _, sn := range list {
			if sn == nil || sn.Node == nil {
				continue
			}
			existing, seen := best[sn.Node.ID]
			if !seen || sn.Score > existing.Score {
				best[sn.Node.ID] = sn
			}
		}
	}

	merged := make([]*node.Scored, 0, len(best))
	for _, sn := range best {
		merged = append(merged, sn)
	}
	sortCandidates(merged)
	return merged
}

// sortCandidates orders candidates by score descending, breaking ties by
// source then node ID.
func sortCandidates(candidates []*node.Scored) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Source != candidates[j].Source {
			return candidates[i].Source < candidates[j].Source
		}
		return candidates[i].Node.ID < candidates[j].Node.ID
	})
}

// applyMinScore drops candidates scoring below threshold. The input is
// assumed sorted; order is preserved.
func applyMinScore(candidates []*node.Scored, minScore float64) []*node.Scored {
	if minScore <= 0 {
		return candidates
	}
	kept := candidates[:0]
	for _, sn := range candidates {
		if sn.Score >= minScore {
			kept = append(kept, sn)
		}
	}
	return kept
}

// truncate limits candidates to topK.
func truncate(candidates []*node.Scored, topK int) []*node.Scored {
	if topK > 0 && len(candidates) > topK {
		return candidates[:topK]
	}
	return candidates
}
