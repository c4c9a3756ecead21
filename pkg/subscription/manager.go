package subscription

import (
	"errors"
	"sync"
)

// Subscription errors.
var (
	ErrNotSubscribed  = errors.New("session is not subscribed")
	ErrNoDelivery     = errors.New("no delivery callback set")
	ErrAlreadyPresent = errors.New("session already subscribed")
)

// Delivery sends one update line to a session. A non-nil error means
// the session cannot take the line and is dropped from the fanout.
type Delivery func(sessionID, line string) error

// resourceKey identifies one resource of one slot.
type resourceKey struct {
	slotID   int
	resource string
}

// entry holds the subscribers of one resource, in subscription order.
type entry struct {
	key      uint32
	sessions []string
}

// Manager tracks which sessions subscribed to which resources and
// performs the broadcast fanout.
type Manager struct {
	mu sync.Mutex

	// nextKey feeds broadcast key assignment; keys are never reused.
	nextKey uint32

	byResource map[resourceKey]*entry
	bySession  map[string]map[resourceKey]struct{}

	onDeliver Delivery
}

// NewManager creates an empty fanout manager.
func NewManager() *Manager {
	return &Manager{
		byResource: make(map[resourceKey]*entry),
		bySession:  make(map[string]map[resourceKey]struct{}),
	}
}

// OnDeliver sets the delivery callback used by Broadcast.
func (m *Manager) OnDeliver(fn Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDeliver = fn
}

// Subscribe adds a session to a resource's fanout and returns the
// resource's broadcast key. The first subscriber allocates the key.
// Subscribing twice is harmless and returns the existing key.
func (m *Manager) Subscribe(slotID int, resource, sessionID string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := resourceKey{slotID: slotID, resource: resource}
	e := m.byResource[rk]
	if e == nil {
		m.nextKey++
		e = &entry{key: m.nextKey}
		m.byResource[rk] = e
	}

	for _, have := range e.sessions {
		if have == sessionID {
			return e.key
		}
	}
	e.sessions = append(e.sessions, sessionID)

	refs := m.bySession[sessionID]
	if refs == nil {
		refs = make(map[resourceKey]struct{})
		m.bySession[sessionID] = refs
	}
	refs[rk] = struct{}{}

	return e.key
}

// Unsubscribe removes a session from a resource's fanout. It returns
// the resource's broadcast key after removal: zero when the last
// subscriber left.
func (m *Manager) Unsubscribe(slotID int, resource, sessionID string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := resourceKey{slotID: slotID, resource: resource}
	e := m.byResource[rk]
	if e == nil {
		return 0, ErrNotSubscribed
	}
	if !m.removeLocked(rk, e, sessionID) {
		return 0, ErrNotSubscribed
	}
	if m.byResource[rk] == nil {
		return 0, nil
	}
	return e.key, nil
}

// ResourceRef names one resource whose subscriber set just emptied.
type ResourceRef struct {
	SlotID   int
	Resource string
}

// DropSession removes a session from every fanout it joined, typically
// on disconnect. It returns the resources that now have no subscribers
// so the engine can clear their broadcast keys.
func (m *Manager) DropSession(sessionID string) []ResourceRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	var emptied []ResourceRef
	for rk := range m.bySession[sessionID] {
		e := m.byResource[rk]
		if e == nil {
			continue
		}
		m.removeLocked(rk, e, sessionID)
		if m.byResource[rk] == nil {
			emptied = append(emptied, ResourceRef{SlotID: rk.slotID, Resource: rk.resource})
		}
	}
	delete(m.bySession, sessionID)
	return emptied
}

// Broadcast delivers one line to every subscriber of the resource.
// Subscribers whose delivery fails are dropped and returned so the
// caller can tell them why. It also returns how many deliveries
// succeeded and how many subscribers remain; zero remaining means the
// broadcast key is dead.
func (m *Manager) Broadcast(slotID int, resource, line string) (delivered, remaining int, dropped []string) {
	m.mu.Lock()
	rk := resourceKey{slotID: slotID, resource: resource}
	e := m.byResource[rk]
	if e == nil {
		m.mu.Unlock()
		return 0, 0, nil
	}
	targets := make([]string, len(e.sessions))
	copy(targets, e.sessions)
	deliver := m.onDeliver
	m.mu.Unlock()

	if deliver == nil {
		return 0, len(targets), nil
	}

	for _, sessionID := range targets {
		if err := deliver(sessionID, line); err != nil {
			dropped = append(dropped, sessionID)
			continue
		}
		delivered++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e = m.byResource[rk]; e == nil {
		return delivered, 0, dropped
	}
	for _, sessionID := range dropped {
		m.removeLocked(rk, e, sessionID)
	}
	if m.byResource[rk] == nil {
		return delivered, 0, dropped
	}
	return delivered, len(e.sessions), dropped
}

// Key returns the resource's current broadcast key, zero if nobody is
// subscribed.
func (m *Manager) Key(slotID int, resource string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.byResource[resourceKey{slotID: slotID, resource: resource}]; e != nil {
		return e.key
	}
	return 0
}

// Subscribers returns how many sessions subscribe to the resource.
func (m *Manager) Subscribers(slotID int, resource string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.byResource[resourceKey{slotID: slotID, resource: resource}]; e != nil {
		return len(e.sessions)
	}
	return 0
}

// removeLocked detaches a session from an entry, deleting the entry
// when it empties. Returns false if the session was not subscribed.
func (m *Manager) removeLocked(rk resourceKey, e *entry, sessionID string) bool {
	found := false
	for i, have := range e.sessions {
		if have == sessionID {
			e.sessions = append(e.sessions[:i], e.sessions[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if refs := m.bySession[sessionID]; refs != nil {
		delete(refs, rk)
		if len(refs) == 0 {
			delete(m.bySession, sessionID)
		}
	}
	if len(e.sessions) == 0 {
		delete(m.byResource, rk)
	}
	return true
}
