package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/goodsin-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/goodsin-backend/pkg/redis"
)

const cacheKind = "code"

type cachedResolver struct {
	next  Resolver
	store pkgredis.CacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedResolver memoizes resolutions, unknown codes included, in Redis.
// Cache failures fall through to the wrapped resolver.
func NewCachedResolver(next Resolver, store pkgredis.CacheStore, ttl time.Duration, logg *logger.Logger) Resolver {
	if store == nil || ttl <= 0 {
		return next
	}
	return &cachedResolver{next: next, store: store, ttl: ttl, logg: logg}
}

func (c *cachedResolver) ResolveBarcode(ctx context.Context, code string) (Resolution, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Resolution{}, nil
	}
	key := c.store.CatalogKey(cacheKind, code)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var res Resolution
		if jsonErr := json.Unmarshal([]byte(raw), &res); jsonErr == nil {
			return res, nil
		}
	case !errors.Is(err, pkgredis.Nil):
		c.warn(ctx, "catalog cache read failed", err)
	}

	res, err := c.next.ResolveBarcode(ctx, code)
	if err != nil {
		return res, err
	}
	if payload, jsonErr := json.Marshal(res); jsonErr == nil {
		if setErr := c.store.Set(ctx, key, string(payload), c.ttl); setErr != nil {
			c.warn(ctx, "catalog cache write failed", setErr)
		}
	}
	return res, nil
}

func (c *cachedResolver) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
}
