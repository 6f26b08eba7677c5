package sandboxpip

import (
	"sync"

	"github.com/ocx/sandboxcore/internal/policy"
)

// CacheRecord memoizes, per path, which operations have already produced a
// report for this pip. Installed via path_cache.GetOrAdd so concurrent
// lookups of the same path share one record instead of racing separate ones.
type CacheRecord struct {
	mu       sync.Mutex
	reported map[policy.Op]bool
}

// NewCacheRecord is the factory passed to PathTrie.GetOrAdd.
func NewCacheRecord() *CacheRecord {
	return &CacheRecord{reported: make(map[policy.Op]bool, 1)}
}

// MarkReported records that op has now been reported for this path and
// returns whether it was already reported before this call (the dispatcher
// suppresses a duplicate report in that case).
func (c *CacheRecord) MarkReported(op policy.Op) (alreadyReported bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reported[op] {
		return true
	}
	c.reported[op] = true
	return false
}
