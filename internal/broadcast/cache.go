package broadcast

import (
	"context"
	"sync"
)

// Cache holds the latest snapshot of one keyspace, kept current by a
// subscription.
type Cache struct {
	mu    sync.RWMutex
	snap  Snapshot
	unsub func()
}

func NewCache(ctx context.Context, s Store, keyspace string) (*Cache, error) {
	c := &Cache{snap: Snapshot{}}
	unsub, err := s.Subscribe(ctx, keyspace, func(snap Snapshot) {
		c.mu.Lock()
		c.snap = snap
		c.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	c.unsub = unsub
	return c, nil
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.clone()
}

func (c *Cache) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}
