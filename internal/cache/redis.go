package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func MustConnect(addr string, db int) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := r.Ping(context.Background()).Err(); err != nil {
		panic(err)
	}
	return r
}

// ResultCache stores recognized text keyed by image fingerprint.
// A nil *ResultCache is valid and never hits.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewResultCache(rdb *redis.Client, ttl time.Duration) *ResultCache {
	if rdb == nil {
		return nil
	}
	return &ResultCache{rdb: rdb, ttl: ttl}
}

func key(lang, fingerprint string) string { return "ocr:" + lang + ":" + fingerprint }

// Get returns the cached text. A miss is ("", false, nil).
func (c *ResultCache) Get(ctx context.Context, lang, fingerprint string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	txt, err := c.rdb.Get(ctx, key(lang, fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return txt, true, nil
}

func (c *ResultCache) Set(ctx context.Context, lang, fingerprint, text string) error {
	if c == nil || c.ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, key(lang, fingerprint), text, c.ttl).Err()
}
