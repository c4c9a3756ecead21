package engine

import (
	"sync"
	"sync/atomic"

	"log/slog"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/model"
	"github.com/perilink/perilink-go/pkg/pending"
	"github.com/perilink/perilink-go/pkg/subscription"
	"github.com/perilink/perilink-go/pkg/transport"
	"github.com/perilink/perilink-go/pkg/wire"
)

// Engine drives one board: it owns the slot table, routes client
// requests to the hardware, and fans replies and autosend updates back
// out to sessions.
type Engine struct {
	config   Config
	logger   *slog.Logger
	protocol log.Logger

	link        *transport.Link
	supervisor  *pending.Supervisor
	subscribers *subscription.Manager

	mu            sync.RWMutex
	state         EngineState
	eventHandlers []EventHandler
	deliver       Delivery
	complete      Completion

	// Board tables. Owned by the loop goroutine after Start.
	slots  [model.MaxSlots]*instance
	byCore [wire.MaxCores]*instance

	slotCount atomic.Int32

	requests chan *request
	inbound  chan *wire.Packet
	expiries chan *pending.Expectation

	closeOnce sync.Once
	closeCh   chan struct{}
	loopDone  chan struct{}
}

// instance is one loaded driver: its slot, its spec table, and the
// driver value whose closures hold any private state.
type instance struct {
	slot   *model.Slot
	driver Driver
	info   Info
	specs  []ResourceSpec
}

// spec returns the named resource spec, nil if absent.
func (in *instance) spec(name string) *ResourceSpec {
	for i := range in.specs {
		if in.specs[i].Name == name {
			return &in.specs[i]
		}
	}
	return nil
}

// broadcastSpec returns the broadcast-capable spec anchored at the
// given register, nil if absent. Broadcastable specs within one slot
// have distinct registers, so the register alone routes an autosend.
func (in *instance) broadcastSpec(register uint8) *ResourceSpec {
	for i := range in.specs {
		if in.specs[i].Caps.CanBroadcast() && in.specs[i].Register == register {
			return &in.specs[i]
		}
	}
	return nil
}

// opKind selects the request operation.
type opKind uint8

const (
	opGet opKind = iota
	opSet
	opCat
	opList
	opLoad
	opDrop
)

// request is one client operation posted to the loop.
type request struct {
	op       opKind
	session  string
	slotRef  string // slot number or driver name, "" to search by resource
	resource string
	value    string // set value, get transaction arguments, load driver name
	core     int    // load target core, -1 selects the lowest free core
}

// New creates an engine. The engine is not restartable: one New, one
// Start, one Stop.
func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.AckTimeout == 0 {
		config.AckTimeout = pending.DefaultTimeout
	}
	if config.RequestQueueSize == 0 {
		config.RequestQueueSize = 32
	}
	if config.TxQueueSize == 0 {
		config.TxQueueSize = transport.DefaultTxQueueSize
	}

	e := &Engine{
		config:   config,
		logger:   config.Logger,
		protocol: config.ProtocolLogger,
		state:    StateIdle,
		requests: make(chan *request, config.RequestQueueSize),
		inbound:  make(chan *wire.Packet, 16),
		expiries: make(chan *pending.Expectation, 16),
		closeCh:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	e.supervisor = pending.NewSupervisor(config.AckTimeout)
	e.supervisor.OnTimeout(func(ex *pending.Expectation) {
		select {
		case e.expiries <- ex:
		case <-e.closeCh:
		}
	})

	e.subscribers = subscription.NewManager()
	e.subscribers.OnDeliver(func(sessionID, line string) error {
		return e.deliverLine(sessionID, line)
	})

	return e, nil
}

// State returns the current engine state.
func (e *Engine) State() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// OnEvent registers an event handler.
func (e *Engine) OnEvent(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventHandlers = append(e.eventHandlers, handler)
}

// OnDeliver sets the callback that writes reply and broadcast lines to
// a session. Set it before Start.
func (e *Engine) OnDeliver(fn Delivery) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deliver = fn
}

// OnComplete sets the callback invoked when a session's command has
// fully completed, including asynchronous reads. Set it before Start.
func (e *Engine) OnComplete(fn Completion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.complete = fn
}

// SlotCount returns the number of loaded slots.
func (e *Engine) SlotCount() int {
	return int(e.slotCount.Load())
}

// Start opens the board link over the given port and starts the event
// loop.
func (e *Engine) Start(port transport.Port) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.state = StateStarting
	e.mu.Unlock()

	e.link = transport.NewLink(transport.LinkConfig{
		BoardID:     e.config.BoardID,
		TxQueueSize: e.config.TxQueueSize,
		Logger:      e.protocol,
	}, &linkEvents{engine: e})

	if err := e.link.Open(port); err != nil {
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
		return err
	}

	go e.run()

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	e.debugLog("engine started", "board", e.config.BoardID)
	return nil
}

// Stop closes the link, cancels outstanding watchdogs, and joins the
// event loop.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.state = StateStopping
	e.mu.Unlock()

	_ = e.link.Close()
	e.supervisor.CancelAll()
	e.closeOnce.Do(func() { close(e.closeCh) })
	<-e.loopDone

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	e.debugLog("engine stopped", "board", e.config.BoardID)
	return nil
}

// Get reads a resource for a session. Args carries the argument string
// for transaction resources and is empty otherwise. The reply, or an
// error line, reaches the session through the delivery callback.
func (e *Engine) Get(sessionID, slotRef, resource, args string) error {
	return e.submit(&request{op: opGet, session: sessionID, slotRef: slotRef, resource: resource, value: args})
}

// Set writes a value to a resource for a session.
func (e *Engine) Set(sessionID, slotRef, resource, value string) error {
	return e.submit(&request{op: opSet, session: sessionID, slotRef: slotRef, resource: resource, value: value})
}

// Cat subscribes a session to a resource's autosend updates. The
// subscription lasts until the session is dropped.
func (e *Engine) Cat(sessionID, slotRef, resource string) error {
	return e.submit(&request{op: opCat, session: sessionID, slotRef: slotRef, resource: resource})
}

// List writes the slot listing, or one slot's resource listing, to the
// session. An empty slotRef lists every loaded slot.
func (e *Engine) List(sessionID, slotRef string) error {
	return e.submit(&request{op: opList, session: sessionID, slotRef: slotRef})
}

// Load installs a registered driver into the next free slot. Core -1
// selects the lowest core without a driver. A session ID of "" loads
// silently, for boot-time loads.
func (e *Engine) Load(sessionID, driver string, core int) error {
	return e.submit(&request{op: opLoad, session: sessionID, value: driver, core: core})
}

// DropSession releases everything a session holds: subscriptions and
// resource locks. Called when a session disconnects.
func (e *Engine) DropSession(sessionID string) error {
	return e.submit(&request{op: opDrop, session: sessionID})
}

// submit posts a request to the loop, failing fast when the engine is
// not running.
func (e *Engine) submit(req *request) error {
	if e.State() != StateRunning {
		return ErrNotStarted
	}
	select {
	case e.requests <- req:
		return nil
	case <-e.closeCh:
		return ErrNotStarted
	}
}

// deliverLine hands one line to the session layer. Lines for the empty
// session (boot-time loads) are dropped.
func (e *Engine) deliverLine(sessionID, line string) error {
	if sessionID == "" {
		return nil
	}
	e.mu.RLock()
	deliver := e.deliver
	e.mu.RUnlock()
	if deliver == nil {
		return nil
	}
	return deliver(sessionID, line)
}

// completeCmd signals command completion to the session layer.
func (e *Engine) completeCmd(sessionID string) {
	if sessionID == "" {
		return
	}
	e.mu.RLock()
	complete := e.complete
	e.mu.RUnlock()
	if complete != nil {
		complete(sessionID)
	}
}

// emitEvent dispatches an event to all registered handlers.
func (e *Engine) emitEvent(event Event) {
	e.mu.RLock()
	handlers := e.eventHandlers
	e.mu.RUnlock()
	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (e *Engine) debugLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

// linkEvents adapts transport callbacks onto the loop's channels.
type linkEvents struct {
	engine *Engine
}

func (h *linkEvents) OnPacket(p *wire.Packet) {
	select {
	case h.engine.inbound <- p:
	case <-h.engine.closeCh:
	}
}

func (h *linkEvents) OnStateChange(oldState, newState transport.LinkState) {
	h.engine.captureLinkState(oldState, newState)
	h.engine.emitEvent(Event{Type: EventLinkState, LinkState: newState})
}

func (h *linkEvents) OnError(err error) {
	h.engine.debugLog("link error", "board", h.engine.config.BoardID, "error", err)
}

var _ transport.LinkHandler = (*linkEvents)(nil)
