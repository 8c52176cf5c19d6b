package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

type memoryCache struct {
	c *ristretto.Cache[string, []byte]
}

// NewMemory returns an in-process cache. Values are stored JSON-encoded so
// callers never share mutable state with the cache.
func NewMemory(numCounters, maxCost int64) (Cache, error) {
	if numCounters <= 0 {
		numCounters = 1e5
	}
	if maxCost <= 0 {
		maxCost = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &memoryCache{c: c}, nil
}

func (m *memoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	data, ok := m.c.Get(key)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (m *memoryCache) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.c.SetWithTTL(key, data, int64(len(data)), ttl)
	// make the write visible to the next Get
	m.c.Wait()
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Del(k)
	}
	return nil
}

func (m *memoryCache) Clear(_ context.Context) error {
	m.c.Clear()
	return nil
}

func (m *memoryCache) Close() error {
	m.c.Close()
	return nil
}
