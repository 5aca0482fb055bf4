package controller

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/searchforge/fusion_proxy/engine"
	"github.com/searchforge/fusion_proxy/fuse"
	"github.com/searchforge/fusion_proxy/internal/contract"
)

// CacheEntry captures a fused response.
type CacheEntry struct {
	Collection string
	Items      []contract.Item
	ListSizes  map[string]int
	EngineMS   int64
	storedAt   time.Time
}

// Cache is a lightweight in-memory cache with TTL.
type Cache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	store map[string]CacheEntry
}

// NewCache returns a cache; zero ttl disables caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:   ttl,
		store: make(map[string]CacheEntry),
	}
}

// Get retrieves an entry if still fresh.
func (c *Cache) Get(key string) (CacheEntry, bool) {
	if c == nil || c.ttl <= 0 {
		return CacheEntry{}, false
	}

	c.mu.RLock()
	entry, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return CacheEntry{}, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return CacheEntry{}, false
	}
	return entry, true
}

// Set stores an entry.
func (c *Cache) Set(key string, entry CacheEntry) {
	if c == nil || c.ttl <= 0 {
		return
	}
	entry.storedAt = time.Now()
	c.mu.Lock()
	c.store[key] = entry
	c.mu.Unlock()
}

// DropCollection removes every entry computed against collection.
func (c *Cache) DropCollection(collection string) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	for key, entry := range c.store {
		if entry.Collection == collection {
			delete(c.store, key)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// BuildCacheKey hashes the parameters that influence the fused output.
func BuildCacheKey(collection string, queries []engine.VectorQuery, fusion fuse.Config, policyVersion string) string {
	payload := map[string]any{
		"collection":     collection,
		"queries":        queries,
		"strategy":       strategyName(fusion),
		"topn":           fusion.TopN,
		"rank_constant":  fusion.RankConstant,
		"metric":         fusion.Metric,
		"weights":        fusion.Weights,
		"policy_version": policyVersion,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
