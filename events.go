// events.go fans pipeline events out to observers (the SSE endpoint, the
// logger, tests). Publishing never blocks: a subscriber that falls behind
// misses events rather than stalling a writer.
package main

import (
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventTasksChanged EventType = "tasks_changed"
	EventToast        EventType = "toast"

	eventWildcard EventType = "*"
)

// ToastLevel is the severity of a toast.
type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
	ToastInfo    ToastLevel = "info"
)

// DefaultToastDuration is how long front ends show a toast.
const DefaultToastDuration = 5 * time.Second

// Toast is a short notice for the user. UndoID, when set, is the history
// entry a front end can offer to undo.
type Toast struct {
	Level    ToastLevel    `json:"level"`
	Message  string        `json:"message"`
	UndoID   string        `json:"undo_id,omitempty"`
	Duration time.Duration `json:"-"`
}

// Event is one broker message. Snapshot is set for tasks_changed, Toast for
// toast.
type Event struct {
	Type     EventType
	Snapshot *Snapshot
	Toast    *Toast
	At       time.Time
}

// Broker manages event distribution.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBroker creates a broker whose subscriber channels buffer bufferSize
// events.
func NewBroker(bufferSize int) *Broker {
	if bufferSize < 1 {
		bufferSize = 16
	}
	return &Broker{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to the given event types, or to all of
// them if none are given.
func (b *Broker) Subscribe(types ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if len(types) == 0 {
		types = []EventType{eventWildcard}
	}
	for _, et := range types {
		b.subscribers[et] = append(b.subscribers[et], ch)
	}
	return ch
}

// Unsubscribe removes ch from every event type and closes it.
func (b *Broker) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found chan Event
	for et, subs := range b.subscribers {
		for i, c := range subs {
			if c == ch {
				found = c
				b.subscribers[et] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subscribers[et]) == 0 {
			delete(b.subscribers, et)
		}
	}
	if found != nil {
		close(found)
	}
}

// Publish sends ev to matching subscribers, dropping it for any subscriber
// whose buffer is full.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, et := range []EventType{ev.Type, eventWildcard} {
		for _, ch := range b.subscribers[et] {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// PublishSnapshot announces a new store snapshot.
func (b *Broker) PublishSnapshot(snap *Snapshot) {
	b.Publish(Event{Type: EventTasksChanged, Snapshot: snap})
}

// PublishToast announces a toast, defaulting its duration.
func (b *Broker) PublishToast(t Toast) {
	if t.Duration == 0 {
		t.Duration = DefaultToastDuration
	}
	b.Publish(Event{Type: EventToast, Toast: &t})
}

// Close closes every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed := make(map[chan Event]bool)
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if !closed[ch] {
				closed[ch] = true
				close(ch)
			}
		}
	}
	b.subscribers = make(map[EventType][]chan Event)
}
