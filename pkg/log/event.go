package log

import (
	"time"

	"github.com/perilink/perilink-go/pkg/wire"
)

// Event represents a protocol capture event from any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// BoardID identifies the board the event relates to.
	BoardID string `cbor:"2,keyasint"`

	// Direction indicates traffic flow relative to the daemon.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// SessionID identifies the client session (UUID, session events only).
	SessionID string `cbor:"6,keyasint,omitempty"`

	// Slot is the peripheral slot the event relates to, when known.
	Slot *int `cbor:"7,keyasint,omitempty"`

	// Resource is the resource name the event relates to, when known.
	Resource string `cbor:"8,keyasint,omitempty"`

	// Layer-specific payload (one of these will be set).
	Raw         *RawEvent         `cbor:"9,keyasint,omitempty"`  // Transport layer
	Packet      *PacketEvent      `cbor:"10,keyasint,omitempty"` // Wire layer (decoded)
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"` // Session layer
	Timeout     *TimeoutEvent     `cbor:"12,keyasint,omitempty"` // Engine watchdog expiry
	Broadcast   *BroadcastEvent   `cbor:"13,keyasint,omitempty"` // Engine fan-out
	StateChange *StateChangeEvent `cbor:"14,keyasint,omitempty"` // Link/session/slot state
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of traffic flow.
type Direction uint8

const (
	// DirectionIn indicates traffic arriving at the daemon
	// (packets from the board, command lines from clients).
	DirectionIn Direction = 0
	// DirectionOut indicates traffic leaving the daemon
	// (packets to the board, reply lines to clients).
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the board link layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the packet layer (decoded headers and payloads).
	LayerWire Layer = 1
	// LayerEngine is the dispatch layer (timeouts, broadcasts, slots).
	LayerEngine Layer = 2
	// LayerSession is the client session layer (text commands).
	LayerSession Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerEngine:
		return "ENGINE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPacket indicates a board packet (raw or decoded).
	CategoryPacket Category = 0
	// CategoryCommand indicates a client command or reply line.
	CategoryCommand Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryTimeout indicates an acknowledgment watchdog expiry.
	CategoryTimeout Category = 3
	// CategoryBroadcast indicates autonomous data fan-out to subscribers.
	CategoryBroadcast Category = 4
	// CategoryError indicates an error event.
	CategoryError Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPacket:
		return "PACKET"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryTimeout:
		return "TIMEOUT"
	case CategoryBroadcast:
		return "BROADCAST"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RawEvent captures bytes on the board link at the transport layer.
// Packets are at most wire.MaxPacket bytes so Data is never truncated.
type RawEvent struct {
	// Size is the number of bytes on the link.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes, header first.
	Data []byte `cbor:"2,keyasint,omitempty"`
}

// PacketEvent captures a decoded packet at the wire layer.
type PacketEvent struct {
	// Op is the packet operation (read or write).
	Op wire.Operation `cbor:"1,keyasint"`

	// Addr is the register addressing mode.
	Addr wire.AddrMode `cbor:"2,keyasint"`

	// Core is the peripheral core the packet targets.
	Core uint8 `cbor:"3,keyasint"`

	// Register is the starting register.
	Register uint8 `cbor:"4,keyasint"`

	// Count is the number of data bytes.
	Count uint8 `cbor:"5,keyasint"`

	// Data is the packet payload (absent on outbound read requests).
	Data []byte `cbor:"6,keyasint,omitempty"`

	// Kind is the inbound classification (write ack, read reply, autosend).
	Kind *wire.Kind `cbor:"7,keyasint,omitempty"`
}

// CommandEvent captures a client command or reply line at the session layer.
type CommandEvent struct {
	// Line is the text line without its trailing newline.
	Line string `cbor:"1,keyasint"`

	// Verb is the parsed command verb (inbound lines only).
	Verb string `cbor:"2,keyasint,omitempty"`
}

// TimeoutEvent captures an acknowledgment watchdog expiry.
// The slot and resource the request targeted are on the Event itself.
type TimeoutEvent struct {
	// Register is the register the unanswered request addressed.
	Register uint8 `cbor:"1,keyasint"`

	// Count is the data byte count of the unanswered request.
	Count uint8 `cbor:"2,keyasint"`

	// Waited is how long the watchdog waited before firing.
	// Stored as nanoseconds.
	Waited time.Duration `cbor:"3,keyasint"`
}

// BroadcastEvent captures autonomous data fan-out to subscribed sessions.
type BroadcastEvent struct {
	// Key is the broadcast key of the resource.
	Key uint32 `cbor:"1,keyasint"`

	// Subscribers is the number of sessions the data was delivered to.
	Subscribers int `cbor:"2,keyasint"`

	// Dropped is the number of subscribers removed on delivery failure.
	Dropped int `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures link, session, and slot lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityLink indicates a board link state change.
	StateEntityLink StateEntity = 0
	// StateEntitySession indicates a client session state change.
	StateEntitySession StateEntity = 1
	// StateEntitySlot indicates a peripheral slot state change.
	StateEntitySlot StateEntity = 2
	// StateEntityCapture marks the capture file itself. The daemon
	// writes one as the first record, with the daemon version as the
	// new state, so a capture names the software that produced it.
	StateEntityCapture StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityLink:
		return "LINK"
	case StateEntitySession:
		return "SESSION"
	case StateEntitySlot:
		return "SLOT"
	case StateEntityCapture:
		return "CAPTURE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the client-visible error number (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
