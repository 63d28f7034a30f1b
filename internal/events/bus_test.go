package events

import (
	"sync"
	"testing"
	"time"
)

// collector gathers delivered events behind a mutex; Publish fans out on
// goroutines, so tests wait on a channel signal.
type collector struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func newCollector(expected int) *collector {
	return &collector{got: make(chan struct{}, expected)}
}

func (c *collector) subscriber() Subscriber {
	return func(e Event) {
		c.mu.Lock()
		c.events = append(c.events, e)
		c.mu.Unlock()
		c.got <- struct{}{}
	}
}

func (c *collector) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestBusDeliversToTypeSubscriber(t *testing.T) {
	bus := NewBus()
	c := newCollector(1)
	bus.Subscribe(EventOrderFilled, c.subscriber())

	bus.Emit(EventOrderFilled, "corr-1", map[string]interface{}{"symbol": "NEWUSDT"})

	got := c.wait(t, 1)
	if got[0].Type != EventOrderFilled {
		t.Errorf("expected %s, got %s", EventOrderFilled, got[0].Type)
	}
	if got[0].CorrelationID != "corr-1" {
		t.Errorf("expected correlation corr-1, got %s", got[0].CorrelationID)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp should be stamped on publish")
	}
}

func TestBusDoesNotDeliverOtherTypes(t *testing.T) {
	bus := NewBus()
	c := newCollector(1)
	bus.Subscribe(EventOrderFilled, c.subscriber())

	bus.Emit(EventOrderPlaced, "corr-1", nil)

	select {
	case <-c.got:
		t.Fatal("subscriber received an event of a different type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusAllSubscriberSeesEverything(t *testing.T) {
	bus := NewBus()
	c := newCollector(3)
	bus.SubscribeAll(c.subscriber())

	bus.Emit(EventOrderPlaced, "a", nil)
	bus.Emit(EventOrderFilled, "a", nil)
	bus.Emit(EventExecutionError, "b", nil)

	got := c.wait(t, 3)
	if len(got) != 3 {
		t.Errorf("expected 3 events, got %d", len(got))
	}
}
