package node

// Filter is a structured metadata predicate: every key must match the node's
// metadata exactly. A nil or empty filter matches all nodes.
//
// Datasources apply the filter client-side after their native search,
// oversampling candidates to compensate, so Matches is the single source of
// truth for filter semantics.
type Filter map[string]string

// Matches reports whether the node satisfies every filter entry.
func (f Filter) Matches(n *TextNode) bool {
	if len(f) == 0 {
		return true
	}
	if n == nil || n.Metadata == nil {
		return false
	}
	for k, want := range f {
		if n.Metadata[k] != want {
			return false
		}
	}
	return true
}
