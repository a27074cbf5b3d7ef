package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans events out to in-process subscribers over buffered channels.
// Publishing never blocks; a subscriber that falls behind misses payloads.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Event]map[uint64]chan any
	drops  atomic.Int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event]map[uint64]chan any)}
}

// Subscribe registers a listener for one event. The returned function removes
// the subscription and closes the channel; calling it more than once is safe.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan any, buffer)
	if b.subs[e] == nil {
		b.subs[e] = make(map[uint64]chan any)
	}
	b.subs[e][id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[e][id]; ok {
			delete(b.subs[e], id)
			close(c)
		}
	}
}

// Publish delivers payload to every subscriber of e without blocking. Missed
// deliveries to full buffers are counted, not retried.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			b.drops.Add(1)
		}
	}
}

// Drops reports how many payloads were missed by slow subscribers.
func (b *Bus) Drops() int64 {
	return b.drops.Load()
}
