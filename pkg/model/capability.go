package model

import "strings"

// Capability is the set of UI access modes a resource permits.
type Capability uint8

const (
	// CapBroadcast allows pccat: the resource emits unsolicited
	// updates that stream to subscribed sessions.
	CapBroadcast Capability = 1

	// CapReadable allows pcget.
	CapReadable Capability = 2

	// CapWritable allows pcset.
	CapWritable Capability = 4
)

// CanBroadcast returns true if pccat is permitted.
func (c Capability) CanBroadcast() bool {
	return c&CapBroadcast != 0
}

// CanRead returns true if pcget is permitted.
func (c Capability) CanRead() bool {
	return c&CapReadable != 0
}

// CanWrite returns true if pcset is permitted.
func (c Capability) CanWrite() bool {
	return c&CapWritable != 0
}

// IsValid returns true for a non-empty capability set that respects
// the broadcast/writable exclusion.
func (c Capability) IsValid() bool {
	if c == 0 || c > CapBroadcast|CapReadable|CapWritable {
		return false
	}
	return !(c.CanBroadcast() && c.CanWrite())
}

// String returns the capability set as "broadcast|read|write" parts.
func (c Capability) String() string {
	var parts []string
	if c.CanBroadcast() {
		parts = append(parts, "broadcast")
	}
	if c.CanRead() {
		parts = append(parts, "read")
	}
	if c.CanWrite() {
		parts = append(parts, "write")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
