// Package events defines appointment state-change events and an in-process
// subscription bus for observers.
package events

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// Bus fans committed events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event and the drop is counted.
// Durable delivery is the outbox relay's job, not the bus's.
type Bus struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	dropped atomic.Uint64
}

type subscription struct {
	ch    chan Event
	types []Type
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger, subs: map[uint64]*subscription{}}
}

// Subscribe registers a buffered channel receiving events of the given types,
// or all events when none are given. The returned func unsubscribes and
// closes the channel.
func (b *Bus) Subscribe(buffer int, types ...Type) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{ch: make(chan Event, buffer), types: types}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

func (b *Bus) Publish(evts ...Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, evt := range evts {
		for _, sub := range b.subs {
			if len(sub.types) > 0 && !slices.Contains(sub.types, evt.Type) {
				continue
			}
			select {
			case sub.ch <- evt:
			default:
				b.dropped.Add(1)
				b.logger.Warn("event dropped for slow subscriber",
					"event_type", evt.Type,
					"appointment_id", evt.AppointmentID,
				)
			}
		}
	}
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
