package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/model"
	"github.com/perilink/perilink-go/pkg/pending"
	"github.com/perilink/perilink-go/pkg/wire"
)

// run is the event loop: the only goroutine that touches the board
// tables. Requests, inbound packets, and watchdog expiries are handled
// to completion in arrival order.
func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case req := <-e.requests:
			e.handleRequest(req)
		case p := <-e.inbound:
			e.handlePacket(p)
		case ex := <-e.expiries:
			e.handleExpiry(ex)
		case <-e.closeCh:
			return
		}
	}
}

func (e *Engine) handleRequest(req *request) {
	switch req.op {
	case opGet:
		e.handleGet(req)
	case opSet:
		e.handleSet(req)
	case opCat:
		e.handleCat(req)
	case opList:
		e.handleList(req)
	case opLoad:
		e.handleLoad(req)
	case opDrop:
		e.handleDrop(req)
	}
}

// fail delivers one catalogue error line and completes the command.
func (e *Engine) fail(session, format string, args ...any) {
	_ = e.deliverLine(session, fmt.Sprintf(format, args...))
	e.completeCmd(session)
}

// deliverResult hands a command result to its session. A session whose
// outbound queue rejects the line gets the overflow diagnostic instead,
// itself best effort: a queue that stays full swallows that too.
func (e *Engine) deliverResult(session, resource, line string) {
	if err := e.deliverLine(session, line); err != nil {
		_ = e.deliverLine(session, fmt.Sprintf(model.ErrFmtOverflow, resource))
	}
}

// resolveSlot resolves a slot token: a slot number or a driver name.
// The returned error line is "" on success.
func (e *Engine) resolveSlot(slotRef string) (*instance, string) {
	if id, err := strconv.Atoi(slotRef); err == nil {
		if id < 0 || id >= model.MaxSlots || e.slots[id] == nil {
			return nil, fmt.Sprintf(model.ErrFmtBadSlot, slotRef)
		}
		return e.slots[id], ""
	}
	for _, inst := range e.slots {
		if inst != nil && inst.info.Name == slotRef {
			return inst, ""
		}
	}
	return nil, fmt.Sprintf(model.ErrFmtNoDriver, slotRef)
}

// resolve resolves a slot token plus resource name. An empty slot
// token searches every slot and requires the resource name to be
// unique. The returned error line is "" on success.
func (e *Engine) resolve(slotRef, resource string) (*instance, *model.Resource, *ResourceSpec, string) {
	var inst *instance
	if slotRef == "" {
		matches := 0
		for _, have := range e.slots {
			if have != nil && have.spec(resource) != nil {
				inst = have
				matches++
			}
		}
		if matches != 1 {
			return nil, nil, nil, fmt.Sprintf(model.ErrFmtNoResource, resource, "*")
		}
	} else {
		var errLine string
		inst, errLine = e.resolveSlot(slotRef)
		if errLine != "" {
			return nil, nil, nil, errLine
		}
	}
	spec := inst.spec(resource)
	if spec == nil {
		return nil, nil, nil, fmt.Sprintf(model.ErrFmtNoResource, resource, inst.info.Name)
	}
	res, err := inst.slot.Resource(resource)
	if err != nil {
		return nil, nil, nil, fmt.Sprintf(model.ErrFmtNoResource, resource, inst.info.Name)
	}
	return inst, res, spec, ""
}

func (e *Engine) handleGet(req *request) {
	inst, res, spec, errLine := e.resolve(req.slotRef, req.resource)
	if errLine != "" {
		e.fail(req.session, "%s", errLine)
		return
	}
	if !spec.Caps.CanRead() {
		e.fail(req.session, model.ErrFmtNotReadable, spec.Name)
		return
	}

	switch {
	case spec.WriteOnGet:
		// A transaction read: the arguments become a write packet and
		// the acknowledgment echo carries the reply.
		if res.Locked() {
			e.fail(req.session, model.ErrFmtBusy, spec.Name)
			return
		}
		data, err := spec.Parse(req.value)
		if err != nil || len(data) == 0 || len(data) > wire.MaxData {
			e.fail(req.session, model.ErrFmtBadValue, spec.Name)
			return
		}
		pkt := e.encodeWrite(spec, inst.slot.Core, spec.Register, data)
		if !e.sendPacket(pkt, inst.slot.ID, spec.Name) {
			e.fail(req.session, model.ErrFmtSendFailed, spec.Name)
			return
		}
		_ = res.Lock(req.session)
		e.supervisor.Arm(inst.slot.Core, pkt.ReplyShape(), inst.slot.ID, spec.Name, req.session)

	case spec.Cached:
		e.deliverResult(req.session, spec.Name, spec.Format(res.Requested()))
		e.completeCmd(req.session)

	default:
		if res.Locked() {
			e.fail(req.session, model.ErrFmtBusy, spec.Name)
			return
		}
		pkt := wire.EncodeRead(inst.slot.Core, spec.Register, spec.Count)
		if !e.sendPacket(pkt, inst.slot.ID, spec.Name) {
			e.fail(req.session, model.ErrFmtSendFailed, spec.Name)
			return
		}
		_ = res.Lock(req.session)
		e.supervisor.Arm(inst.slot.Core, pkt.ReplyShape(), inst.slot.ID, spec.Name, req.session)
	}
}

func (e *Engine) handleSet(req *request) {
	inst, res, spec, errLine := e.resolve(req.slotRef, req.resource)
	if errLine != "" {
		e.fail(req.session, "%s", errLine)
		return
	}
	if !spec.Caps.CanWrite() {
		e.fail(req.session, model.ErrFmtNotWritable, spec.Name)
		return
	}
	data, err := spec.Parse(req.value)
	if err != nil || len(data) == 0 {
		e.fail(req.session, model.ErrFmtBadValue, spec.Name)
		return
	}

	// Requested state is recorded before the send attempt so that a
	// transport failure leaves a visible divergence from the
	// confirmed value rather than a silent one.
	res.SetRequested(data)

	if !e.writeChunks(inst, spec, data, req.session) {
		e.fail(req.session, model.ErrFmtSendFailed, spec.Name)
		return
	}

	if spec.SetReply != nil {
		e.deliverResult(req.session, spec.Name, spec.SetReply(data))
	}
	e.completeCmd(req.session)
}

func (e *Engine) handleCat(req *request) {
	inst, res, spec, errLine := e.resolve(req.slotRef, req.resource)
	if errLine != "" {
		e.fail(req.session, "%s", errLine)
		return
	}
	if !spec.Caps.CanBroadcast() {
		e.fail(req.session, model.ErrFmtNotReadable, spec.Name)
		return
	}
	key := e.subscribers.Subscribe(inst.slot.ID, spec.Name, req.session)
	res.SetBroadcastKey(key)
	e.debugLog("subscribed", "session", req.session, "slot", inst.slot.ID, "resource", spec.Name, "key", key)
	e.completeCmd(req.session)
}

func (e *Engine) handleList(req *request) {
	if req.slotRef == "" {
		for _, inst := range e.slots {
			if inst != nil {
				e.listSlot(req.session, inst, false)
			}
		}
		e.completeCmd(req.session)
		return
	}
	inst, errLine := e.resolveSlot(req.slotRef)
	if errLine != "" {
		e.fail(req.session, "%s", errLine)
		return
	}
	e.listSlot(req.session, inst, true)
	e.completeCmd(req.session)
}

// listSlot writes one slot's listing block: the slot line, a line per
// resource, and optionally the driver's full help text.
func (e *Engine) listSlot(session string, inst *instance, withHelp bool) {
	_ = e.deliverLine(session, fmt.Sprintf(model.ListSlotFormat, inst.slot.ID, inst.info.Name, inst.info.Desc))
	for i := range inst.specs {
		spec := &inst.specs[i]
		broadcast, readable, writable := model.CapabilityWords(spec.Caps)
		_ = e.deliverLine(session, fmt.Sprintf(model.ListResourceFormat, spec.Name, broadcast, readable, writable))
	}
	if withHelp && inst.info.Help != "" {
		help := inst.info.Help
		if !strings.HasSuffix(help, "\n") {
			help += "\n"
		}
		_ = e.deliverLine(session, help)
	}
}

func (e *Engine) handleLoad(req *request) {
	name := req.value

	d, err := e.config.NewDriver(name)
	if err != nil {
		e.debugLog("driver not registered", "driver", name, "error", err)
		e.emitEvent(Event{Type: EventSlotFailed, Driver: name, Error: err})
		e.fail(req.session, model.ErrFmtNoDriver, name)
		return
	}

	core := req.core
	if core < 0 {
		for c := 0; c < wire.MaxCores; c++ {
			if e.byCore[c] == nil {
				core = c
				break
			}
		}
	}
	if core < 0 || core >= wire.MaxCores || e.byCore[core] != nil {
		e.debugLog("core unavailable, ignoring load", "driver", name, "core", req.core)
		e.emitEvent(Event{Type: EventSlotFailed, Driver: name, Error: ErrSlotOccupied})
		e.completeCmd(req.session)
		return
	}

	slotID := -1
	for i := 0; i < model.MaxSlots; i++ {
		if e.slots[i] == nil {
			slotID = i
			break
		}
	}
	if slotID < 0 {
		e.debugLog("no free slot, ignoring load", "driver", name)
		e.emitEvent(Event{Type: EventSlotFailed, Driver: name, Error: ErrNoFreeSlot})
		e.completeCmd(req.session)
		return
	}

	info := d.Info()
	specs := d.Resources()
	if err := validateSpecs(specs); err != nil {
		e.debugLog("driver initialization error", "driver", name, "error", err)
		e.emitEvent(Event{Type: EventSlotFailed, SlotID: slotID, Driver: name,
			Error: fmt.Errorf("%w: %v", ErrDriverInit, err)})
		e.completeCmd(req.session)
		return
	}

	slot := model.NewSlot(slotID, uint8(core))
	slot.Driver = info.Name
	slot.Desc = info.Desc
	slot.Help = info.Help
	for i := range specs {
		res, err := model.NewResource(specs[i].Name, specs[i].Caps)
		if err == nil {
			err = slot.AddResource(res)
		}
		if err != nil {
			e.debugLog("driver initialization error", "driver", name, "error", err)
			e.emitEvent(Event{Type: EventSlotFailed, SlotID: slotID, Driver: name,
				Error: fmt.Errorf("%w: %v", ErrDriverInit, err)})
			e.completeCmd(req.session)
			return
		}
	}

	inst := &instance{slot: slot, driver: d, info: info, specs: specs}
	e.slots[slotID] = inst
	e.byCore[core] = inst
	e.slotCount.Add(1)

	e.captureSlotLoaded(slotID, info.Name, uint8(core))
	e.debugLog("slot loaded", "slot", slotID, "driver", info.Name, "core", core)
	e.emitEvent(Event{Type: EventSlotLoaded, SlotID: slotID, Driver: info.Name})

	// Put the hardware in its declared state and prime the
	// install-time caches.
	for i := range specs {
		spec := &inst.specs[i]
		if spec.InitWrite != nil {
			if res, err := inst.slot.Resource(spec.Name); err == nil {
				res.SetRequested(spec.InitWrite)
			}
			if !e.writeChunks(inst, spec, spec.InitWrite, "") {
				e.debugLog("install write send failed", "slot", slotID, "resource", spec.Name)
			}
		}
		if !spec.InitRead {
			continue
		}
		pkt := wire.EncodeRead(uint8(core), spec.Register, spec.Count)
		if !e.sendPacket(pkt, slotID, spec.Name) {
			e.debugLog("install read send failed", "slot", slotID, "resource", spec.Name)
			continue
		}
		e.supervisor.Arm(uint8(core), pkt.ReplyShape(), slotID, spec.Name, "")
	}

	e.completeCmd(req.session)
}

func (e *Engine) handleDrop(req *request) {
	// Stale expectations would claim replies to later same-shape
	// requests from live sessions.
	cancelled := e.supervisor.DropSession(req.session)
	if cancelled > 0 {
		e.debugLog("cancelled expectations for dropped session",
			"session", req.session, "count", cancelled)
	}
	emptied := e.subscribers.DropSession(req.session)
	for _, ref := range emptied {
		if inst := e.slots[ref.SlotID]; inst != nil {
			if res, err := inst.slot.Resource(ref.Resource); err == nil {
				res.SetBroadcastKey(0)
			}
		}
	}
	for _, inst := range e.slots {
		if inst == nil {
			continue
		}
		for _, res := range inst.slot.Resources() {
			if res.LockHolder() == req.session {
				res.Unlock()
			}
		}
	}
	e.debugLog("session dropped", "session", req.session)
}

func (e *Engine) handlePacket(p *wire.Packet) {
	switch wire.Classify(p) {
	case wire.KindAutosend:
		e.handleAutosend(p)
	case wire.KindWriteAck, wire.KindReadReply:
		e.handleReply(p)
	default:
		e.capturePacket(p, log.DirectionIn, -1, "")
		e.captureMismatch(p, "malformed packet")
		e.emitEvent(Event{Type: EventProtocolMismatch})
	}
}

func (e *Engine) handleAutosend(p *wire.Packet) {
	// A transaction waiting on an unsolicited reply claims the packet
	// before any broadcast fanout.
	if ex, _ := e.supervisor.Resolve(p.Core, p.Shape()); ex != nil {
		e.deliverAsyncReply(p, ex)
		return
	}

	inst := e.coreInstance(p.Core)
	if inst == nil {
		e.capturePacket(p, log.DirectionIn, -1, "")
		e.captureMismatch(p, "autosend for unloaded core")
		e.emitEvent(Event{Type: EventProtocolMismatch})
		return
	}
	spec := inst.broadcastSpec(p.Register)
	if spec == nil {
		e.capturePacket(p, log.DirectionIn, inst.slot.ID, "")
		e.captureMismatch(p, "autosend matches no resource")
		e.emitEvent(Event{Type: EventProtocolMismatch})
		return
	}
	e.capturePacket(p, log.DirectionIn, inst.slot.ID, spec.Name)

	res, err := inst.slot.Resource(spec.Name)
	if err != nil {
		return
	}
	if spec.SuppressDup && res.DuplicateUpdate(p.Data) {
		e.debugLog("duplicate autosend suppressed", "slot", inst.slot.ID, "resource", spec.Name)
		return
	}
	key := res.BroadcastKey()
	if key == 0 {
		return
	}
	line := spec.Format(p.Data)
	if line == "" {
		e.debugLog("autosend dropped by driver", "slot", inst.slot.ID, "resource", spec.Name)
		return
	}

	delivered, remaining, dropped := e.subscribers.Broadcast(inst.slot.ID, spec.Name, line)
	for _, session := range dropped {
		_ = e.deliverLine(session, fmt.Sprintf(model.ErrFmtOverflow, spec.Name))
	}
	if remaining == 0 {
		res.SetBroadcastKey(0)
	}
	e.captureBroadcast(inst.slot.ID, spec.Name, key, delivered, len(dropped))
}

// deliverAsyncReply completes a transaction whose result arrived as an
// unsolicited packet rather than in the write echo.
func (e *Engine) deliverAsyncReply(p *wire.Packet, ex *pending.Expectation) {
	inst := e.slots[ex.SlotID]
	if inst == nil {
		e.capturePacket(p, log.DirectionIn, -1, "")
		return
	}
	spec := inst.spec(ex.Resource)
	res, err := inst.slot.Resource(ex.Resource)
	if spec == nil || err != nil {
		e.capturePacket(p, log.DirectionIn, inst.slot.ID, "")
		return
	}
	e.capturePacket(p, log.DirectionIn, inst.slot.ID, spec.Name)

	if res.LockHolder() == ex.Session {
		res.Unlock()
	}
	e.deliverResult(ex.Session, spec.Name, spec.Format(p.Data))
	e.completeCmd(ex.Session)
}

func (e *Engine) handleReply(p *wire.Packet) {
	ex, ambiguous := e.supervisor.Resolve(p.Core, p.Shape())
	if ex == nil {
		e.capturePacket(p, log.DirectionIn, -1, "")
		e.captureMismatch(p, "reply matches no outstanding request")
		e.emitEvent(Event{Type: EventProtocolMismatch})
		return
	}
	if ambiguous {
		e.debugLog("ambiguous correlation, resolved oldest",
			"core", p.Core, "register", p.Register, "count", p.Count)
		e.captureAmbiguous(ex)
	}

	inst := e.slots[ex.SlotID]
	if inst == nil {
		e.capturePacket(p, log.DirectionIn, -1, "")
		return
	}
	spec := inst.spec(ex.Resource)
	res, err := inst.slot.Resource(ex.Resource)
	if spec == nil || err != nil {
		e.capturePacket(p, log.DirectionIn, inst.slot.ID, "")
		return
	}
	e.capturePacket(p, log.DirectionIn, inst.slot.ID, spec.Name)

	if wire.Classify(p) == wire.KindWriteAck {
		res.Confirm()
		if ex.Session != "" && res.LockHolder() == ex.Session {
			if spec.AsyncReply {
				// The echo only confirms delivery. Move the watchdog
				// onto the reply packet and keep the lock.
				shape := wire.Shape{Kind: wire.KindAutosend,
					Register: spec.ReplyRegister, Count: p.Count}
				e.supervisor.Arm(p.Core, shape, ex.SlotID, ex.Resource, ex.Session)
				return
			}
			// Transaction reads reply through the acknowledgment echo.
			res.Unlock()
			e.deliverResult(ex.Session, spec.Name, spec.Format(p.Data))
			e.completeCmd(ex.Session)
		}
		return
	}

	if ex.Session == "" {
		// Install-time read priming the cache.
		res.SetRequested(p.Data)
		res.Confirm()
		if spec.Enumerates {
			e.emitEvent(Event{Type: EventEnumeration, SlotID: inst.slot.ID,
				DriverIDs: driverIDs(p.Data)})
		}
		return
	}

	if res.LockHolder() == ex.Session {
		res.Unlock()
	}
	e.deliverResult(ex.Session, spec.Name, spec.Format(p.Data))
	e.completeCmd(ex.Session)
}

func (e *Engine) handleExpiry(ex *pending.Expectation) {
	waited := time.Since(ex.SentAt)
	e.captureTimeout(ex, waited)
	e.debugLog("no ack from board",
		"slot", ex.SlotID, "resource", ex.Resource,
		"register", ex.Shape.Register, "waited", waited)
	e.emitEvent(Event{Type: EventAckTimeout, SlotID: ex.SlotID, Resource: ex.Resource})

	if ex.Session == "" {
		return
	}
	released := false
	if inst := e.slots[ex.SlotID]; inst != nil {
		if res, err := inst.slot.Resource(ex.Resource); err == nil {
			if res.LockHolder() == ex.Session {
				res.Unlock()
				released = true
			}
		}
	}
	_ = e.deliverLine(ex.Session, fmt.Sprintf(model.ErrFmtNoResponse, ex.Resource))
	if released {
		e.completeCmd(ex.Session)
	}
}

// encodeWrite builds the write packet for a spec, honoring its
// addressing mode.
func (e *Engine) encodeWrite(spec *ResourceSpec, core, register uint8, data []byte) *wire.Packet {
	if spec.Fixed {
		return wire.EncodeWriteFixed(core, register, data)
	}
	return wire.EncodeWrite(core, register, data)
}

// writeChunks splits data into packet-sized writes and arms a watchdog
// for each chunk. Fixed resources keep writing the same register;
// auto-increment resources advance it. Returns false when the link
// rejects a chunk.
func (e *Engine) writeChunks(inst *instance, spec *ResourceSpec, data []byte, session string) bool {
	for off := 0; off < len(data); off += wire.MaxData {
		end := off + wire.MaxData
		if end > len(data) {
			end = len(data)
		}
		register := spec.Register
		if !spec.Fixed {
			register += uint8(off)
		}
		pkt := e.encodeWrite(spec, inst.slot.Core, register, data[off:end])
		if !e.sendPacket(pkt, inst.slot.ID, spec.Name) {
			return false
		}
		e.supervisor.Arm(inst.slot.Core, pkt.ReplyShape(), inst.slot.ID, spec.Name, session)
	}
	return true
}

// sendPacket hands a packet to the link and captures it. Returns false
// when the link rejected it.
func (e *Engine) sendPacket(p *wire.Packet, slotID int, resource string) bool {
	if err := e.link.Send(p); err != nil {
		e.debugLog("send failed", "slot", slotID, "resource", resource, "error", err)
		return false
	}
	e.capturePacket(p, log.DirectionOut, slotID, resource)
	return true
}

func (e *Engine) coreInstance(core uint8) *instance {
	if int(core) >= len(e.byCore) {
		return nil
	}
	return e.byCore[core]
}
