// Package events is the audit log of the execution engine. Every lifecycle
// transition in the job queue, the execution core and the position monitors
// publishes a correlation-tagged event here; sinks fan the stream out to
// persistence or any other subscriber.
package events

import (
	"sync"
	"time"
)

// EventType identifies an audit event in the engine's catalog. The catalog is
// part of the audit contract: sinks may rely on these values.
type EventType string

const (
	EventTargetScheduled       EventType = "target_scheduled"
	EventExecutionStarted      EventType = "execution_started"
	EventOrderPlaced           EventType = "order_placed"
	EventOrderFilled           EventType = "order_filled"
	EventBalanceCheckBlocked   EventType = "balance_check_blocked"
	EventExecutionError        EventType = "execution_error"
	EventPositionOpened        EventType = "position_opened"
	EventPositionClosed        EventType = "position_closed"
	EventStopLossTriggered     EventType = "stop_loss_triggered"
	EventTakeProfitTriggered   EventType = "take_profit_triggered"
	EventEmergencyHalt         EventType = "emergency_halt"
	EventJobCompleted          EventType = "job_completed"
	EventJobFailed             EventType = "job_failed"
	EventCalendarSynced        EventType = "calendar_synced"
	EventHousekeepingCompleted EventType = "housekeeping_completed"
)

// Event is a single audit record. CorrelationID links every event belonging
// to one logical operation (one target execution, one job run, one position).
type Event struct {
	Type          EventType              `json:"type"`
	CorrelationID string                 `json:"correlation_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Subscriber handles published events.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to all matching subscribers. Delivery is
// asynchronous so a slow sink never blocks the hot execution path.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// Emit is shorthand for Publish with the common three fields.
func (b *Bus) Emit(eventType EventType, correlationID string, payload map[string]interface{}) {
	b.Publish(Event{
		Type:          eventType,
		CorrelationID: correlationID,
		Payload:       payload,
	})
}
