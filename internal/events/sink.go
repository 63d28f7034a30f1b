package events

// Emitter is the narrow interface components use to publish audit events.
// *Bus satisfies it; tests substitute a synchronous recorder.
type Emitter interface {
	Emit(eventType EventType, correlationID string, payload map[string]interface{})
}

var _ Emitter = (*Bus)(nil)

// Sink persists published events. The engine wires a repository-backed sink
// at startup via Bus.SubscribeAll; the sink implementation is replaceable.
type Sink interface {
	Write(event Event)
}

// SinkSubscriber adapts a Sink into a Subscriber.
func SinkSubscriber(sink Sink) Subscriber {
	return func(event Event) {
		sink.Write(event)
	}
}
