package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(addr AddressInput) string {
	normalized := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(strings.TrimSpace(addr.Street)),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToLower(strings.TrimSpace(addr.State)),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache looks up a cached result. Cache errors are logged and treated
// as misses so a broken cache never blocks geocoding.
func (g *geocoder) checkCache(ctx context.Context, key string) *Result {
	if g.cache == nil {
		return nil
	}
	cached, err := g.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("geocode cache lookup failed", zap.Error(err))
		return nil
	}
	if cached == nil {
		return nil
	}
	zap.L().Debug("geocode cache hit",
		zap.String("key", key[:12]),
		zap.Bool("matched", cached.Matched),
	)
	return cached
}

// storeCache writes a result (match or non-match) to the cache.
func (g *geocoder) storeCache(ctx context.Context, key string, result *Result) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Put(ctx, key, result); err != nil {
		zap.L().Warn("geocode cache store failed", zap.Error(err))
	}
}
