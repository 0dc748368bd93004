package extract

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kyleking/schema-replay/internal/schema"
)

// DefaultCacheSize is used when NewCache is given a non-positive size
const DefaultCacheSize = 512

// Cache memoizes Extract by content hash. Results are shared between callers
// and must be treated as read-only.
type Cache struct {
	entries *lru.Cache[[sha256.Size]byte, []schema.Operation]
}

// NewCache creates an extraction cache holding up to size files
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	entries, err := lru.New[[sha256.Size]byte, []schema.Operation](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction cache: %w", err)
	}

	return &Cache{entries: entries}, nil
}

// Extract returns the operations for text, computing them on first use
func (c *Cache) Extract(text string) []schema.Operation {
	key := sha256.Sum256([]byte(text))

	if ops, ok := c.entries.Get(key); ok {
		return ops
	}

	ops := Extract(text)
	c.entries.Add(key, ops)

	return ops
}

// Len returns the number of cached files
func (c *Cache) Len() int {
	return c.entries.Len()
}
