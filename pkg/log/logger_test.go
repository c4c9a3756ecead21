package log

import (
	"testing"
	"time"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	// Should not panic with any event type
	event := Event{
		Timestamp: time.Now(),
		BoardID:   "test-board",
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Category:  CategoryPacket,
	}

	// Test with nil payloads
	logger.Log(event)

	// Test with raw payload
	event.Raw = &RawEvent{Size: 5, Data: []byte{1, 2, 3, 4, 5}}
	logger.Log(event)

	// Test with packet payload
	event.Raw = nil
	event.Packet = &PacketEvent{Core: 3, Register: 0, Count: 1}
	logger.Log(event)

	// Test with command payload
	event.Packet = nil
	event.Command = &CommandEvent{Line: "pclist"}
	logger.Log(event)

	// Test with timeout payload
	event.Command = nil
	event.Timeout = &TimeoutEvent{Register: 1, Count: 1, Waited: time.Millisecond}
	logger.Log(event)

	// Test with state change payload
	event.Timeout = nil
	event.StateChange = &StateChangeEvent{Entity: StateEntityLink, NewState: "up"}
	logger.Log(event)

	// Test with error payload
	event.StateChange = nil
	event.Error = &ErrorEventData{Message: "test error"}
	logger.Log(event)
}

func TestLoggerInterfaceSatisfaction(t *testing.T) {
	// Compile-time check that NoopLogger satisfies Logger interface
	var _ Logger = NoopLogger{}
	var _ Logger = &NoopLogger{}
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	// NoopLogger should be usable as zero value
	var logger NoopLogger
	logger.Log(Event{})
}
