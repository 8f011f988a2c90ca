package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
)

// CachedCompleter memoizes completions for identical prompt pairs.
// Revalidating a claim against unchanged rows then costs no extra call.
type CachedCompleter struct {
	next   Completer
	cache  *gocache.Cache
	logger *zerolog.Logger
}

// NewCachedCompleter wraps next with an in-memory cache keyed by prompt hash.
func NewCachedCompleter(next Completer, ttl time.Duration, logger *zerolog.Logger) *CachedCompleter {
	return &CachedCompleter{
		next:   next,
		cache:  gocache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Complete implements Completer. Errors are never cached.
func (c *CachedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	key := cacheKey(system, user)

	if val, found := c.cache.Get(key); found {
		if s, ok := val.(string); ok {
			observability.CompletionCacheHits.Inc()
			c.logger.Debug().Str("cache_key", key[:12]).Msg("completion cache hit")

			return s, nil
		}
	}

	out, err := c.next.Complete(ctx, system, user)
	if err != nil {
		return "", err //nolint:wrapcheck // pass-through decorator
	}

	c.cache.SetDefault(key, out)

	return out, nil
}

// Flush drops all cached completions.
func (c *CachedCompleter) Flush() {
	c.cache.Flush()
}

func cacheKey(system, user string) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))

	return hex.EncodeToString(h.Sum(nil))
}
