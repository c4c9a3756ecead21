package engine

import (
	"fmt"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/pending"
	"github.com/perilink/perilink-go/pkg/transport"
	"github.com/perilink/perilink-go/pkg/wire"
)

// capturePacket records a decoded packet with slot and resource
// attribution. A negative slotID means the packet matched no slot.
func (e *Engine) capturePacket(p *wire.Packet, direction log.Direction, slotID int, resource string) {
	if e.protocol == nil {
		return
	}
	ev := log.Event{
		Timestamp: time.Now(),
		BoardID:   e.config.BoardID,
		Direction: direction,
		Layer:     log.LayerWire,
		Category:  log.CategoryPacket,
		Resource:  resource,
		Packet: &log.PacketEvent{
			Op:       p.Op,
			Addr:     p.Addr,
			Core:     p.Core,
			Register: p.Register,
			Count:    p.Count,
			Data:     p.Data,
		},
	}
	if slotID >= 0 {
		ev.Slot = &slotID
	}
	if direction == log.DirectionIn {
		kind := wire.Classify(p)
		ev.Packet.Kind = &kind
	}
	e.protocol.Log(ev)
}

// captureTimeout records a watchdog expiry.
func (e *Engine) captureTimeout(ex *pending.Expectation, waited time.Duration) {
	if e.protocol == nil {
		return
	}
	slotID := ex.SlotID
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   e.config.BoardID,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryTimeout,
		SessionID: ex.Session,
		Slot:      &slotID,
		Resource:  ex.Resource,
		Timeout: &log.TimeoutEvent{
			Register: ex.Shape.Register,
			Count:    ex.Shape.Count,
			Waited:   waited,
		},
	})
}

// captureBroadcast records an autosend fan-out.
func (e *Engine) captureBroadcast(slotID int, resource string, key uint32, delivered, dropped int) {
	if e.protocol == nil {
		return
	}
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   e.config.BoardID,
		Direction: log.DirectionOut,
		Layer:     log.LayerEngine,
		Category:  log.CategoryBroadcast,
		Slot:      &slotID,
		Resource:  resource,
		Broadcast: &log.BroadcastEvent{
			Key:         key,
			Subscribers: delivered,
			Dropped:     dropped,
		},
	})
}

// captureLinkState records a board link state change.
func (e *Engine) captureLinkState(oldState, newState transport.LinkState) {
	if e.protocol == nil {
		return
	}
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   e.config.BoardID,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityLink,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})
}

// captureSlotLoaded records a driver landing in a slot.
func (e *Engine) captureSlotLoaded(slotID int, driver string, core uint8) {
	if e.protocol == nil {
		return
	}
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   e.config.BoardID,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		Slot:      &slotID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySlot,
			OldState: "empty",
			NewState: "loaded",
			Reason:   fmt.Sprintf("%s on core %d", driver, core),
		},
	})
}

// captureMismatch records an inbound packet that matched nothing.
func (e *Engine) captureMismatch(p *wire.Packet, context string) {
	if e.protocol == nil {
		return
	}
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   e.config.BoardID,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerEngine,
			Message: "protocol mismatch",
			Context: fmt.Sprintf("%s: core %d reg %d count %d", context, p.Core, p.Register, p.Count),
		},
	})
}

// captureAmbiguous records a reply that matched more than one
// outstanding request.
func (e *Engine) captureAmbiguous(ex *pending.Expectation) {
	if e.protocol == nil {
		return
	}
	slotID := ex.SlotID
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   e.config.BoardID,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryError,
		Slot:      &slotID,
		Resource:  ex.Resource,
		Error: &log.ErrorEventData{
			Layer:   log.LayerEngine,
			Message: "ambiguous correlation",
			Context: fmt.Sprintf("oldest of several matches chosen, seq %d", ex.Seq),
		},
	})
}
