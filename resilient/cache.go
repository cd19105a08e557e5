package resilient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a successful response stays cached.
const DefaultTTL = 300 * time.Second

// Cache stores successful provider payloads by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
}

// CacheKey derives the cache key for a call. Secret parameters are removed
// before hashing so keys never depend on credentials.
func CacheKey(provider, endpoint string, params map[string]any, secrets []string) string {
	filtered := make(map[string]any, len(params))
	for k, v := range params {
		filtered[k] = v
	}
	for _, s := range secrets {
		delete(filtered, s)
	}

	// encoding/json and fmt both sort map keys.
	encoded, err := json.Marshal(filtered)
	if err != nil {
		encoded = []byte(fmt.Sprint(filtered))
	}

	sum := sha256.Sum256([]byte(provider + ":" + endpoint + ":" + string(encoded)))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process TTL cache. Expired entries are purged when
// the cache is read rather than by a background janitor.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: gocache.New(DefaultTTL, 0)}
}

// Get returns an unexpired payload.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.items.DeleteExpired()
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	payload, ok := v.([]byte)
	return payload, ok
}

// Set stores payload for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.items.Set(key, payload, ttl)
}

// Len returns the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}
