package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of memoized counts kept by default
const DefaultCacheSize = 10000

// CachedOracle memoizes counts of another oracle by content hash.
type CachedOracle struct {
	next  Oracle
	cache *lru.Cache[string, int]
}

// NewCached wraps next with an LRU cache of maxLen entries.
func NewCached(next Oracle, maxLen int) *CachedOracle {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, int](maxLen)
	if err != nil {
		// only fails for non-positive sizes
		cache, _ = lru.New[string, int](DefaultCacheSize)
	}
	return &CachedOracle{next: next, cache: cache}
}

// Count serves cached texts and sends only the misses to the wrapped oracle,
// in their original relative order.
func (c *CachedOracle) Count(ctx context.Context, texts []string) ([]int, error) {
	counts := make([]int, len(texts))
	hashes := make([]string, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		hashes[i] = ComputeHash(text)
		if n, ok := c.cache.Get(hashes[i]); ok {
			counts[i] = n
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return counts, nil
	}

	fresh, err := CountBatch(ctx, c.next, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		counts[i] = fresh[j]
		c.cache.Add(hashes[i], fresh[j])
	}
	return counts, nil
}

// Size returns the current cache size
func (c *CachedOracle) Size() int {
	return c.cache.Len()
}

func (c *CachedOracle) Name() string          { return c.next.Name() }
func (c *CachedOracle) ConcurrencySafe() bool { return c.next.ConcurrencySafe() }
func (c *CachedOracle) Close() error          { return c.next.Close() }

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
