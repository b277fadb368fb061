package storage

import (
	"context"
	"sync"
	"time"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/ports"
)

// MemorySeenStore is the process-local seen-store used when no database is
// configured. It can be seeded from the previous artifact so that carried
// items are not reported as fresh again.
type MemorySeenStore struct {
	mu   sync.RWMutex
	seen map[string]map[string]time.Time
}

var _ ports.SeenStore = (*MemorySeenStore)(nil)

// NewMemorySeenStore returns an empty store.
func NewMemorySeenStore() *MemorySeenStore {
	return &MemorySeenStore{seen: map[string]map[string]time.Time{}}
}

// SeedFromDocument marks every item of doc as seen at doc.GeneratedAt.
func (m *MemorySeenStore) SeedFromDocument(doc *domain.AggregateDocument) {
	if doc == nil {
		return
	}
	doc.Feeds.Walk(func(group, key string, result *domain.SourceResult) {
		source := key
		if group != "" {
			source = group + "/" + key
		}
		ids := make([]string, 0, len(result.Items))
		for _, item := range result.Items {
			ids = append(ids, item.ID)
		}
		_ = m.Touch(context.Background(), source, ids, doc.GeneratedAt)
	})
}

// LastSeen implements ports.SeenStore.
func (m *MemorySeenStore) LastSeen(_ context.Context, source string, ids []string) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time)
	bySource := m.seen[source]
	for _, id := range ids {
		if at, ok := bySource[id]; ok {
			out[id] = at
		}
	}
	return out, nil
}

// Touch implements ports.SeenStore.
func (m *MemorySeenStore) Touch(_ context.Context, source string, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySource, ok := m.seen[source]
	if !ok {
		bySource = make(map[string]time.Time, len(ids))
		m.seen[source] = bySource
	}
	for _, id := range ids {
		bySource[id] = at
	}
	return nil
}
