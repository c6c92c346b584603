package broadcast

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-process Store. Subscribers are called synchronously,
// in write order.
type MemoryStore struct {
	mu     sync.Mutex
	spaces map[string]Snapshot
	subs   map[string]map[int]func(Snapshot)
	nextID int

	// notify serializes fan-out so subscribers observe writes in order.
	notify sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spaces: make(map[string]Snapshot),
		subs:   make(map[string]map[int]func(Snapshot)),
	}
}

func (m *MemoryStore) Write(ctx context.Context, keyspace, id string, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}

	m.notify.Lock()
	defer m.notify.Unlock()

	m.mu.Lock()
	space, ok := m.spaces[keyspace]
	if !ok {
		space = make(Snapshot)
		m.spaces[keyspace] = space
	}
	space[id] = b
	snap := space.clone()
	fns := make([]func(Snapshot), 0, len(m.subs[keyspace]))
	for _, fn := range m.subs[keyspace] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap.clone())
	}
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, keyspace, id string, into any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	b, ok := m.spaces[keyspace][id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(b, into)
}

func (m *MemoryStore) Subscribe(ctx context.Context, keyspace string, fn func(Snapshot)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.notify.Lock()
	defer m.notify.Unlock()

	m.mu.Lock()
	if m.subs[keyspace] == nil {
		m.subs[keyspace] = make(map[int]func(Snapshot))
	}
	id := m.nextID
	m.nextID++
	m.subs[keyspace][id] = fn
	snap := m.spaces[keyspace].clone()
	m.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[keyspace], id)
			m.mu.Unlock()
		})
	}, nil
}

// Snapshot returns a copy of a keyspace.
func (m *MemoryStore) Snapshot(keyspace string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spaces[keyspace].clone()
}
