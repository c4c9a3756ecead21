package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/pending"
	"github.com/perilink/perilink-go/pkg/transport"
)

// Engine errors.
var (
	ErrNotStarted     = errors.New("engine not started")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrUnknownDriver  = errors.New("driver not registered")
	ErrNoFreeSlot     = errors.New("no free slot")
	ErrSlotOccupied   = errors.New("core already has a driver")
	ErrDriverInit     = errors.New("driver initialization failed")
)

// EngineState represents the engine state.
type EngineState uint8

const (
	// StateIdle - engine created but not started.
	StateIdle EngineState = iota

	// StateStarting - engine is starting up.
	StateStarting

	// StateRunning - engine is running normally.
	StateRunning

	// StateStopping - engine is shutting down.
	StateStopping

	// StateStopped - engine has stopped.
	StateStopped
)

// String returns the state name.
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures an Engine.
type Config struct {
	// BoardID names the board in daemon logs and protocol captures.
	BoardID string

	// NewDriver resolves a driver name to a fresh driver instance.
	// Wired to the driver registry by the daemon.
	NewDriver func(name string) (Driver, error)

	// AckTimeout is how long to wait for a board reply before the
	// watchdog fires (default: 100ms).
	AckTimeout time.Duration

	// RequestQueueSize bounds the session request channel (default: 32).
	RequestQueueSize int

	// TxQueueSize bounds the transport transmit queue (default: 32).
	TxQueueSize int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures protocol events (packets, timeouts,
	// broadcasts). If nil, capture is disabled.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BoardID:          "board0",
		AckTimeout:       pending.DefaultTimeout,
		RequestQueueSize: 32,
		TxQueueSize:      transport.DefaultTxQueueSize,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.BoardID == "" {
		return ErrInvalidConfig
	}
	if c.NewDriver == nil {
		return ErrInvalidConfig
	}
	if c.AckTimeout < 0 || c.RequestQueueSize < 0 || c.TxQueueSize < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Event types for engine callbacks.
type EventType uint8

const (
	// EventSlotLoaded - a driver was installed into a slot.
	EventSlotLoaded EventType = iota

	// EventSlotFailed - a driver load or initialization failed.
	EventSlotFailed

	// EventEnumeration - the board's driver list was read.
	EventEnumeration

	// EventLinkState - the board link changed state.
	EventLinkState

	// EventAckTimeout - a request went unanswered.
	EventAckTimeout

	// EventProtocolMismatch - an inbound packet matched nothing.
	EventProtocolMismatch
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventSlotLoaded:
		return "SLOT_LOADED"
	case EventSlotFailed:
		return "SLOT_FAILED"
	case EventEnumeration:
		return "ENUMERATION"
	case EventLinkState:
		return "LINK_STATE"
	case EventAckTimeout:
		return "ACK_TIMEOUT"
	case EventProtocolMismatch:
		return "PROTOCOL_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// Event represents an engine event.
type Event struct {
	// Type is the event type.
	Type EventType

	// SlotID is the slot the event relates to (slot events).
	SlotID int

	// Driver is the driver name (slot events).
	Driver string

	// Resource is the resource name (timeout events).
	Resource string

	// DriverIDs is the decoded enumerator list (enumeration events).
	DriverIDs []uint16

	// LinkState is the new link state (link events).
	LinkState transport.LinkState

	// Error is set if the event is an error.
	Error error
}

// EventHandler handles engine events.
type EventHandler func(Event)

// Delivery sends one reply or broadcast line to a session. A non-nil
// error means the session cannot take the line.
type Delivery func(sessionID, line string) error

// Completion marks the end of a session's command so the session layer
// can emit its prompt.
type Completion func(sessionID string)
