package narrative

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/truthlens/truthlens/internal/domain"
)

// CachedNarrator reuses successful narratives for identical review sets.
// Only the reviews actually sent to the generator form the key.
type CachedNarrator struct {
	next  Narrator
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedNarrator wraps next with cache.
func NewCachedNarrator(next Narrator, cache domain.Cache, ttl time.Duration) *CachedNarrator {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedNarrator{next: next, cache: cache, ttl: ttl}
}

// Narrate implements Narrator.
func (c *CachedNarrator) Narrate(ctx context.Context, reviews []domain.Review) Result {
	if len(reviews) == 0 {
		return c.next.Narrate(ctx, reviews)
	}

	key, err := CacheKey(reviews)
	if err != nil {
		return c.next.Narrate(ctx, reviews)
	}

	if data, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("narrative cache read failed", "error", err)
	} else if data != nil {
		var n domain.Narrative
		if err := json.Unmarshal(data, &n); err == nil {
			return Result{Narrative: n, OK: true, Cached: true}
		}
	}

	res := c.next.Narrate(ctx, reviews)
	if !res.OK {
		return res
	}

	if data, err := json.Marshal(res.Narrative); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			slog.Warn("narrative cache write failed", "error", err)
		}
	}
	return res
}

// CacheKey hashes the reviews that would be sent to the generator.
func CacheKey(reviews []domain.Review) (string, error) {
	data, err := json.Marshal(Head(reviews))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "narrative:" + hex.EncodeToString(sum[:]), nil
}
