package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fystack/draw-engine/pkg/infra"
	"github.com/redis/go-redis/v9"
)

const clearBatch = 500

type redisCache struct {
	client    infra.RedisClient
	namespace string
}

func NewRedis(client infra.RedisClient, namespace string) Cache {
	return &redisCache{client: client, namespace: namespace}
}

func (c *redisCache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

func (c *redisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(key))
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(raw), dst)
}

func (c *redisCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, ttl)
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...)
}

func (c *redisCache) Clear(ctx context.Context) error {
	iter := c.client.GetClient().Scan(ctx, 0, c.key("*"), clearBatch).Iterator()
	batch := make([]string, 0, clearBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatch {
			if err := c.client.Del(ctx, batch...); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...)
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
