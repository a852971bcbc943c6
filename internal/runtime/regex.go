package runtime

import (
	"sync"

	"github.com/coregx/coregex"
)

// RegexCache caches compiled patterns used by the regex filters with
// FIFO eviction. Reads are lock-free via sync.Map so repeated filter
// calls inside render loops pay no lock cost after the first compile.
type RegexCache struct {
	cache   sync.Map // map[string]*coregex.Regexp
	orderMu sync.Mutex
	order   []string
	size    int
	maxSize int
}

// NewRegexCache creates a cache holding at most maxSize patterns.
func NewRegexCache(maxSize int) *RegexCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &RegexCache{
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get returns the compiled pattern, compiling and caching on first use.
func (c *RegexCache) Get(pattern string) (*coregex.Regexp, error) {
	if re, ok := c.cache.Load(pattern); ok {
		return re.(*coregex.Regexp), nil
	}

	re, err := coregex.Compile(pattern)
	if err != nil {
		return nil, err
	}

	if existing, loaded := c.cache.LoadOrStore(pattern, re); loaded {
		return existing.(*coregex.Regexp), nil
	}

	c.orderMu.Lock()
	c.order = append(c.order, pattern)
	c.size++
	for c.size > c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.cache.Delete(oldest)
		c.size--
	}
	c.orderMu.Unlock()

	return re, nil
}

// Len returns the number of cached patterns.
func (c *RegexCache) Len() int {
	c.orderMu.Lock()
	n := c.size
	c.orderMu.Unlock()
	return n
}

// Clear removes all cached patterns.
func (c *RegexCache) Clear() {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()
	for _, p := range c.order {
		c.cache.Delete(p)
	}
	c.order = c.order[:0]
	c.size = 0
}
