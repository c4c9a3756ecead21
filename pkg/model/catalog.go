package model

// Client-visible reply formats. Scripted clients match on these
// strings verbatim, so the numbering and wording are a frozen surface:
// entries are never renumbered or reworded, only appended.
const (
	// ErrFmtBadCommand takes the rejected command line.
	ErrFmtBadCommand = "ERROR 001 : Unrecognized command: %s\n"

	// ErrFmtNoDriver takes a driver name that is not loaded and not
	// in the registry.
	ErrFmtNoDriver = "ERROR 002 : Plug-in '%s' is not in system\n"

	// ErrFmtBadSlot takes the slot token that did not resolve.
	ErrFmtBadSlot = "ERROR 003 : Unrecognized slot ID: %s\n"

	// ErrFmtNoResource takes the resource name and the driver name
	// it was looked up in ("*" when every slot was searched).
	ErrFmtNoResource = "ERROR 004 : No resource called '%s' in plug-in %s\n"

	// ErrFmtBusy takes the name of a resource already awaiting a
	// board reply for another session.
	ErrFmtBusy = "ERROR 005 : Resource '%s' is busy\n"

	// ErrFmtNotReadable takes the resource name.
	ErrFmtNotReadable = "ERROR 006 : Resource '%s' is not readable\n"

	// ErrFmtNotWritable takes the resource name.
	ErrFmtNotWritable = "ERROR 007 : Resource '%s' is not writable\n"

	// ErrFmtBadValue takes the resource name that rejected the value.
	ErrFmtBadValue = "ERROR 008 : Invalid value given for resource '%s'\n"

	// ErrFmtOverflow takes the resource whose reply was dropped
	// because the session's outbound queue was full.
	ErrFmtOverflow = "ERROR 009 : Would overflow buffer for resource '%s'\n"

	// ErrFmtNoResponse takes the resource whose request the board
	// never acknowledged.
	ErrFmtNoResponse = "ERROR 010 : No response from board for resource '%s'\n"

	// ErrFmtSendFailed takes the resource whose request could not be
	// handed to the board link.
	ErrFmtSendFailed = "ERROR 011 : Unable to send request to board for resource '%s'\n"
)

// Listing formats. The resource lines indent to sit under the
// description column of the slot line.
const (
	// ListSlotFormat takes slot id, driver name, description.
	ListSlotFormat = "  %2d / %10s   %s\n"

	// ListResourceFormat takes the resource name and its three
	// capability words, each empty or "broadcast "/"readable "/
	// "writable".
	ListResourceFormat = "                  - %s : %s%s%s\n"
)

// Prompt marks command completion for sessions that enabled it.
const Prompt = "pc> "

// CapabilityWords returns the three ListResourceFormat fields for a
// capability set.
func CapabilityWords(c Capability) (broadcast, readable, writable string) {
	if c.CanBroadcast() {
		broadcast = "broadcast "
	}
	if c.CanRead() {
		readable = "readable "
	}
	if c.CanWrite() {
		writable = "writable "
	}
	return broadcast, readable, writable
}
