package model

import (
	"bytes"
	"errors"
)

// Resource errors.
var (
	ErrBusy          = errors.New("resource is busy")
	ErrNotLocked     = errors.New("resource is not locked")
	ErrNotReadable   = errors.New("resource is not readable")
	ErrNotWritable   = errors.New("resource is not writable")
	ErrNoBroadcast   = errors.New("resource does not broadcast")
	ErrBadCapability = errors.New("invalid capability set")
)

// Resource is one user-visible capability of a peripheral instance,
// together with the engine's per-resource protocol state.
type Resource struct {
	// Name is the stable identifier used in UI commands.
	Name string

	// Caps declares the permitted access modes.
	Caps Capability

	// broadcastKey is non-zero while at least one session is
	// subscribed to this resource's unsolicited updates.
	broadcastKey uint32

	// sessionLock identifies the single session awaiting a reply for
	// this resource. Empty means unlocked.
	sessionLock string

	// requested is the last value accepted locally, recorded at send
	// time regardless of ack outcome.
	requested []byte

	// confirmed is the last value the board acknowledged.
	confirmed []byte

	// lastBroadcast is the previous autosend payload, kept only for
	// resources that suppress duplicate updates.
	lastBroadcast []byte
}

// NewResource creates a resource with the given name and capabilities.
func NewResource(name string, caps Capability) (*Resource, error) {
	if !caps.IsValid() {
		return nil, ErrBadCapability
	}
	return &Resource{Name: name, Caps: caps}, nil
}

// Lock marks the resource as awaiting a reply for the given session.
// At most one session holds the lock at a time; a second locker gets
// ErrBusy and the existing lock is untouched.
func (r *Resource) Lock(sessionID string) error {
	if r.sessionLock != "" {
		return ErrBusy
	}
	r.sessionLock = sessionID
	return nil
}

// Unlock clears the session lock and returns the session that held it.
func (r *Resource) Unlock() string {
	held := r.sessionLock
	r.sessionLock = ""
	return held
}

// LockHolder returns the session awaiting a reply, or "" if unlocked.
func (r *Resource) LockHolder() string {
	return r.sessionLock
}

// Locked returns true while a session awaits a reply.
func (r *Resource) Locked() bool {
	return r.sessionLock != ""
}

// SetBroadcastKey records the subscription key. Zero clears it.
func (r *Resource) SetBroadcastKey(key uint32) {
	r.broadcastKey = key
}

// BroadcastKey returns the current subscription key, zero if none.
func (r *Resource) BroadcastKey() uint32 {
	return r.broadcastKey
}

// SetRequested records the value accepted locally at send time.
func (r *Resource) SetRequested(data []byte) {
	r.requested = append(r.requested[:0], data...)
}

// Requested returns the last locally accepted value, nil if never set.
func (r *Resource) Requested() []byte {
	return r.requested
}

// Confirm promotes the requested value to confirmed. Called when the
// board acknowledges a write.
func (r *Resource) Confirm() {
	r.confirmed = append(r.confirmed[:0], r.requested...)
}

// Confirmed returns the last board-acknowledged value, nil if none.
func (r *Resource) Confirmed() []byte {
	return r.confirmed
}

// Diverged returns true once a requested value exists that the board
// has not acknowledged.
func (r *Resource) Diverged() bool {
	return !bytes.Equal(r.requested, r.confirmed)
}

// DuplicateUpdate reports whether payload repeats the previous autosend
// payload, and records it as the new previous value.
func (r *Resource) DuplicateUpdate(payload []byte) bool {
	if r.lastBroadcast != nil && bytes.Equal(r.lastBroadcast, payload) {
		return true
	}
	r.lastBroadcast = append(r.lastBroadcast[:0], payload...)
	return false
}
