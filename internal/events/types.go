// Package events provides event management functionality.
package events

import (
	"sync"
	"time"
)

// EventType represents different event types
type EventType string

const (
	SessionCreated   EventType = "SESSION_CREATED"
	SessionEvicted   EventType = "SESSION_EVICTED"
	SessionDeleted   EventType = "SESSION_DELETED"
	ValuationUpdated EventType = "VALUATION_UPDATED"
	ValuationCleared EventType = "VALUATION_CLEARED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every type the service emits
var AllEventTypes = []EventType{
	SessionCreated,
	SessionEvicted,
	SessionDeleted,
	ValuationUpdated,
	ValuationCleared,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler receives events synchronously on the emitting goroutine
type Handler func(event *Event)

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers in registration order
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscriber
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]subscriber)}
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	bus       *Bus
	eventType EventType
	id        uint64
	once      sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.eventType, s.id)
	})
}

// Subscribe registers handler for eventType
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscriber{id: id, handler: handler})

	return &Subscription{bus: b, eventType: eventType, id: id}
}

// SubscriberCount returns the number of handlers registered for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Emit delivers an event to every handler of its type
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[eventType]))
	for i, sub := range b.subs[eventType] {
		handlers[i] = sub.handler
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (b *Bus) remove(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[eventType]) == 0 {
		delete(b.subs, eventType)
	}
}
