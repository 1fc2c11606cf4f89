// Package eventbus fans out server notifications to the components that
// subscribed to them.
package eventbus

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is one notification. Notif names what happened, ObjectID the record
// it concerns.
type Event struct {
	Notif    string          `json:"notif"`
	ObjectID string          `json:"object_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Handler receives events. Handlers run on the publisher's goroutine and
// must not block.
type Handler func(Event)

// Bus is an in-process publish/subscribe hub. The zero value is not usable;
// call New.
type Bus struct {
	log *slog.Logger

	mu   sync.RWMutex
	next uint64
	subs map[uint64]Handler
}

// New returns an empty bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, subs: make(map[uint64]Handler)}
}

// Subscribe registers h and returns the function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber. A panicking handler is
// logged and does not stop delivery to the rest.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

// Len is the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "notif", ev.Notif, "object_id", ev.ObjectID, "panic", r)
		}
	}()
	h(ev)
}
