package live

import (
	"context"
	"sync"
)

// MemoryBus is the in-process Bus used for single-replica deployments and
// tests. Notifications are delivered synchronously on the publisher's
// goroutine.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func()
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func())}
}

func (b *MemoryBus) Publish(_ context.Context, path string) error {
	b.mu.Lock()
	var notifies []func()
	for _, notify := range b.subs[path] {
		notifies = append(notifies, notify)
	}
	b.mu.Unlock()

	for _, notify := range notifies {
		notify()
	}
	return nil
}

func (b *MemoryBus) Subscribe(path string, notify func()) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[path] == nil {
		b.subs[path] = make(map[int]func())
	}
	b.subs[path][id] = notify

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[path], id)
		if len(b.subs[path]) == 0 {
			delete(b.subs, path)
		}
	}
}

// SubscriberCount reports active subscriptions for a path.
func (b *MemoryBus) SubscriberCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[path])
}
