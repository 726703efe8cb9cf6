package db

import "testing"

func TestCache_ClearGroup(t *testing.T) {
	c, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer c.Close()

	pocketKey := CacheKey(PocketCache, "personal")
	projectionKey := CacheKey(ProjectionCache, "personal", "2026-03")
	c.Set(PocketCache, pocketKey, []string{"General"})
	c.Set(ProjectionCache, projectionKey, 42)

	if _, ok := c.Get(pocketKey); !ok {
		t.Fatal("expected pocket entry to be cached")
	}

	c.Clear(PocketCache)

	if _, ok := c.Get(pocketKey); ok {
		t.Error("pocket entry survived Clear")
	}
	if v, ok := c.Get(projectionKey); !ok || v.(int) != 42 {
		t.Error("projection entry should be untouched by clearing pockets")
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey(ProjectionCache, "business", "2026-03"); got != "projections:business:2026-03" {
		t.Errorf("CacheKey = %q", got)
	}
}
