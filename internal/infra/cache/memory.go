package cache

import (
	"context"
	"sync"
	"time"

	"feedback-relay/internal/domain"
)

// MemoryDeduper: дедупликатор в памяти процесса, используется без Redis.
type MemoryDeduper struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[string]time.Time
}

var _ domain.Deduper = (*MemoryDeduper)(nil)

// NewMemory создаёт дедупликатор в памяти.
func NewMemory() *MemoryDeduper {
	return &MemoryDeduper{now: time.Now, seen: make(map[string]time.Time)}
}

// Seen отмечает ключ на window и сообщает, был ли он уже отмечен.
func (d *MemoryDeduper) Seen(_ context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true, nil
	}
	d.seen[key] = now.Add(window)
	return false, nil
}

// Forget снимает отметку.
func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
	return nil
}
