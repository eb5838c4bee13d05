package events

import (
	"sync"
	"time"
)

// Type identifies the kind of event
type Type string

const (
	TypeLog         Type = "log"
	TypeListChanged Type = "list-changed"
	TypeHookStart   Type = "hook-start"
	TypeHookEnd     Type = "hook-end"
	TypeExit        Type = "exit"
)

// Event is a notification published by the supervisor
type Event struct {
	Type      Type        `json:"type"`
	ProcessID string      `json:"process_id,omitempty"`
	Data      interface{} `json:"data"`
	Time      time.Time   `json:"time"`
}

// Subscription receives events until it is cancelled or the bus is closed
type Subscription struct {
	C <-chan Event

	ch chan Event
}

// Bus fans events out to any number of subscribers. Publish never blocks:
// when a subscriber's channel is full, its oldest pending event is dropped.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	closed      bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber with the given channel capacity
func (b *Bus) Subscribe(capacity int) *Subscription {
	if capacity < 1 {
		capacity = 1
	}
	ch := make(chan Event, capacity)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return sub
	}
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
}

// Publish delivers the event to every subscriber
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for sub := range b.subscribers {
		select {
		case sub.ch <- e:
		default:
			// channel is full, drop the oldest event
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
}

// Subscribers returns the number of active subscribers
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = make(map[*Subscription]struct{})
}
