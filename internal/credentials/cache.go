package credentials

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"reposync/internal/descriptor"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 30 * time.Minute
)

// KeyFunc picks the cache key for a descriptor. Repositories mapping to the
// same key share one resolved token.
type KeyFunc func(d descriptor.Descriptor) string

// SharedKey keys by token_env override, so every repository without one
// shares a single lookup.
func SharedKey(d descriptor.Descriptor) string {
	return "env:" + d.TokenEnv
}

// IDKey caches per repository.
func IDKey(d descriptor.Descriptor) string {
	return "id:" + d.ID
}

// Caching memoizes successful lookups, empty ones included, for a TTL and
// collapses concurrent lookups for the same key into one call to the wrapped
// resolver.
type Caching struct {
	next  Resolver
	key   KeyFunc
	cache *expirable.LRU[string, string]
	group singleflight.Group
}

func NewCaching(next Resolver, key KeyFunc, size int, ttl time.Duration) *Caching {
	if key == nil {
		key = SharedKey
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Caching{
		next:  next,
		key:   key,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (c *Caching) Resolve(ctx context.Context, d descriptor.Descriptor) (string, error) {
	k := c.key(d)
	if tok, ok := c.cache.Get(k); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		tok, err := c.next.Resolve(ctx, d)
		if err != nil {
			return "", err
		}
		c.cache.Add(k, tok)
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Purge drops every cached token.
func (c *Caching) Purge() {
	c.cache.Purge()
}
