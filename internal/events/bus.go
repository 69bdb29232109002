package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventHandler handles one delivered event.
type EventHandler func(*Event)

// Subscription identifies a registered handler so it can be removed when its
// consumer goes away.
type Subscription struct {
	eventType EventType
	id        uint64
}

// Bus is the in-process pub/sub channel for lifecycle and decision events.
// Each of the appliance's processes owns its own bus; events never cross
// process boundaries (the filesystem channels do that).
type Bus struct {
	mu     sync.RWMutex
	byType map[EventType][]subscriber
	nextID uint64
	log    zerolog.Logger
}

type subscriber struct {
	id      uint64
	handler EventHandler
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		byType: make(map[EventType][]subscriber),
		log:    log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.byType[eventType] = append(b.byType[eventType], subscriber{
		id:      b.nextID,
		handler: handler,
	})

	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.byType[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			b.byType[sub.eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.byType[sub.eventType]) == 0 {
		delete(b.byType, sub.eventType)
	}
}

// Emit delivers an event to every subscriber of its type. Handlers run on
// their own goroutines so a slow consumer cannot stall the emitting loop.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	subs := make([]subscriber, len(b.byType[eventType]))
	copy(subs, b.byType[eventType])
	b.mu.RUnlock()

	for _, s := range subs {
		go s.handler(event)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("subscribers", len(subs)).
		Msg("Event emitted")
}
