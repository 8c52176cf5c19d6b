// Package cache is a small typed key/value cache with explicit
// invalidation, backed by Redis or by an in-process ristretto cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/infra"
)

type Cache interface {
	// Get decodes the cached value into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Clear drops every key owned by this cache.
	Clear(ctx context.Context) error
	Close() error
}

// NewFromConfig builds the configured cache. A Redis client is only dialled
// for the redis type.
func NewFromConfig(cfg config.CacheCfg, environment string) (Cache, error) {
	switch cfg.Type {
	case enum.CacheTypeRedis:
		client, err := infra.NewRedisClient(cfg.Redis, environment)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.Namespace), nil
	case enum.CacheTypeMemory:
		return NewMemory(cfg.Memory.NumCounters, cfg.Memory.MaxCost)
	}
	return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
}
