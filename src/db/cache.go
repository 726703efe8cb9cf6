package db

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache groups are tracked separately so a write can clear every cached read
// of one kind without touching the others.
type CacheGroup string

const (
	PocketCache     CacheGroup = "pockets"
	ProjectionCache CacheGroup = "projections"
	ObligationCache CacheGroup = "obligations"
)

type Cache struct {
	c *ristretto.Cache[string, any]

	mu   sync.Mutex
	keys map[CacheGroup]map[string]struct{}
}

func NewCache() (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return &Cache{c: c, keys: make(map[CacheGroup]map[string]struct{})}, nil
}

func CacheKey(group CacheGroup, parts ...string) string {
	key := string(group)
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (c *Cache) Get(key string) (any, bool) {
	return c.c.Get(key)
}

// Set stores value and waits for it to become visible to Get.
func (c *Cache) Set(group CacheGroup, key string, value any) {
	c.mu.Lock()
	if c.keys[group] == nil {
		c.keys[group] = make(map[string]struct{})
	}
	c.keys[group][key] = struct{}{}
	c.mu.Unlock()
	c.c.Set(key, value, 1)
	c.c.Wait()
}

func (c *Cache) Del(group CacheGroup, key string) {
	c.mu.Lock()
	delete(c.keys[group], key)
	c.mu.Unlock()
	c.c.Del(key)
}

func (c *Cache) Clear(groups ...CacheGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, group := range groups {
		for key := range c.keys[group] {
			c.c.Del(key)
		}
		delete(c.keys, group)
	}
}

func (c *Cache) Close() {
	c.c.Close()
}
