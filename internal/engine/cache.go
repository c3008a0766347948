package engine

import (
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lodestone-kb/lodestone/internal/node"
)

// defaultNodeCacheSize bounds how many datasource-set node listings are kept.
const defaultNodeCacheSize = 8

// nodeCache memoizes "all nodes" listings per datasource set, so rebuilding
// the lexical index for the same sources skips the expensive listing calls.
// Entries are advisory: invalidation discards everything.
type nodeCache struct {
	cache *lru.Cache[string, []*node.TextNode]
}

func newNodeCache(size int) *nodeCache {
	if size <= 0 {
		size = defaultNodeCacheSize
	}
	cache, _ := lru.New[string, []*node.TextNode](size)
	return &nodeCache{cache: cache}
}

// key normalizes a datasource name set into a cache key. Order does not
// matter: ["b","a"] and ["a","b"] hit the same entry.
func (c *nodeCache) key(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func (c *nodeCache) get(names []string) ([]*node.TextNode, bool) {
	return c.cache.Get(c.key(names))
}

func (c *nodeCache) put(names []string, nodes []*node.TextNode) {
	c.cache.Add(c.key(names), nodes)
}

func (c *nodeCache) invalidate() {
	c.cache.Purge()
}
