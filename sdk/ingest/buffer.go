package ingest

import "sync"

// buffer is one per-kind sequence. drain is the only way items leave it,
// so an item appended concurrently with a drain lands in exactly one
// generation.
type buffer[T any] struct {
	mu    sync.Mutex
	items []T
}

func (b *buffer[T]) add(item T) {
	b.mu.Lock()
	b.items = append(b.items, item)
	b.mu.Unlock()
}

func (b *buffer[T]) drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.items
	b.items = nil
	return items
}

func (b *buffer[T]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
