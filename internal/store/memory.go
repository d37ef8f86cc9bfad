package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memSnapshot struct {
	data      []byte
	expiresAt *time.Time
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	views     []View
	snapshots map[string]memSnapshot
	now       func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]memSnapshot), now: time.Now}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) RecordView(_ context.Context, name string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := View{ID: uuid.New().String(), Name: name, ViewedAt: m.now().UTC()}
	m.views = append(m.views, v)
	return &v, nil
}

func (m *MemoryStore) LastViewed(_ context.Context) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.views) == 0 {
		return nil, nil
	}
	v := m.views[len(m.views)-1]
	return &v, nil
}

func (m *MemoryStore) RecentViews(_ context.Context, limit int) ([]View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.views)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetSnapshot(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[key]
	if !ok || (s.expiresAt != nil && !m.now().Before(*s.expiresAt)) {
		return nil, nil
	}
	return slices.Clone(s.data), nil
}

func (m *MemoryStore) SetSnapshot(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = memSnapshot{data: slices.Clone(data), expiresAt: expiry(m.now(), ttl)}
	return nil
}

func (m *MemoryStore) DeleteExpiredSnapshots(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, s := range m.snapshots {
		if s.expiresAt != nil && !now.Before(*s.expiresAt) {
			delete(m.snapshots, k)
			n++
		}
	}
	return n, nil
}
