package repository

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
)

type cacheEntry struct {
	id        domain.AccountID
	snapshot  domain.PresenceSnapshot
	expiresAt time.Time
}

// MemoryPresenceCache implements domain.PresenceCache in memory with TTL
// expiry and an LRU bound on total entries. Contention is short: every
// operation is a map access plus a list splice under one mutex.
type MemoryPresenceCache struct {
	mu         sync.Mutex
	entries    map[domain.AccountID]*list.Element
	lru        *list.List // front = most recently used
	maxEntries int
}

// NewMemoryPresenceCache creates a cache bounded to maxEntries.
func NewMemoryPresenceCache(maxEntries int) *MemoryPresenceCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryPresenceCache{
		entries:    make(map[domain.AccountID]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

func (c *MemoryPresenceCache) Get(ctx context.Context, id domain.AccountID) (*domain.PresenceSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(elem)
		return nil, nil
	}
	c.lru.MoveToFront(elem)
	snap := entry.snapshot
	return &snap, nil
}

func (c *MemoryPresenceCache) Set(ctx context.Context, snapshot domain.PresenceSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	if elem, ok := c.entries[snapshot.AccountID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.snapshot = snapshot
		entry.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return nil
	}

	elem := c.lru.PushFront(&cacheEntry{
		id:        snapshot.AccountID,
		snapshot:  snapshot,
		expiresAt: expiresAt,
	})
	c.entries[snapshot.AccountID] = elem

	for len(c.entries) > c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
	return nil
}

func (c *MemoryPresenceCache) Delete(ctx context.Context, id domain.AccountID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[id]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Len reports the live entry count (expired entries linger until touched).
func (c *MemoryPresenceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryPresenceCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.id)
}
