package engine

import (
	"errors"
	"fmt"

	"github.com/perilink/perilink-go/pkg/model"
	"github.com/perilink/perilink-go/pkg/wire"
)

// Driver spec errors.
var (
	ErrNoName     = errors.New("resource spec has no name")
	ErrNoParse    = errors.New("writable resource needs a Parse func")
	ErrNoFormat   = errors.New("readable resource needs a Format func")
	ErrBadWindow  = errors.New("resource register window exceeds a packet")
	ErrDupeName   = errors.New("duplicate resource name")
	ErrNoResource = errors.New("driver has no resources")
	ErrBadReply   = errors.New("AsyncReply requires WriteOnGet")
)

// Info identifies a driver to the loader and to pclist.
type Info struct {
	// Name is the driver name used by pcload and pclist.
	Name string

	// Desc is the one-line description shown in slot listings.
	Desc string

	// Help is the full help text shown by pclist for this driver.
	Help string
}

// ResourceSpec describes one resource as data: a register window,
// capability flags, and the value grammar. The engine interprets the
// table; drivers carry no dispatch code or goroutines of their own.
// Parse and Format run on the engine loop, so closures over driver
// state need no locking.
type ResourceSpec struct {
	// Name is the resource name used in client commands.
	Name string

	// Caps declares the permitted access modes.
	Caps model.Capability

	// Register is the first hardware register of the resource.
	Register uint8

	// Count is the read size in bytes, and the autosend size for
	// broadcast resources.
	Count uint8

	// Fixed selects fixed-address writes: every data byte lands on
	// Register. Used for FIFO registers.
	Fixed bool

	// Cached answers pcget from the requested value without a board
	// round trip.
	Cached bool

	// InitRead makes the engine read the register window once at
	// install time and store the reply as the cached value.
	InitRead bool

	// InitWrite, when non-nil, is written to the register window at
	// install time to put the hardware in a known state. It becomes
	// the initial requested value, so Cached resources answer pcget
	// before any client write.
	InitWrite []byte

	// Enumerates marks the InitRead reply as the board's table of
	// 16-bit peripheral driver IDs.
	Enumerates bool

	// SuppressDup drops autosend payloads identical to the previous
	// one. The hardware can repeat itself on simultaneous inputs.
	SuppressDup bool

	// WriteOnGet turns pcget into a transaction: the argument string
	// is parsed into a write packet and the acknowledgment echo is
	// formatted as the reply. Used by bus bridges whose reads have
	// side effects.
	WriteOnGet bool

	// AsyncReply marks a WriteOnGet transaction whose result arrives
	// as an unsolicited packet on ReplyRegister rather than in the
	// write echo. The echo only confirms delivery; the engine keeps
	// the resource locked until the reply packet or a timeout.
	AsyncReply bool

	// ReplyRegister is the register the AsyncReply packet carries.
	ReplyRegister uint8

	// Parse converts a client value string into register bytes.
	Parse func(value string) ([]byte, error)

	// Format converts register bytes into one reply line, trailing
	// newline included. It must tolerate short or nil data. For
	// broadcast resources an empty string drops the packet, which
	// lets a driver discard samples that fail validation.
	Format func(data []byte) string

	// SetReply, when set, is delivered to the session immediately
	// after a successful pcset, echoing the accepted value.
	SetReply func(data []byte) string
}

// Driver provides a peripheral as identity plus resource table.
// Implementations that keep private state share it between their
// specs' closures; each instance loads into its own slot.
type Driver interface {
	// Info returns the driver's identity.
	Info() Info

	// Resources returns the driver's resource table. Called once at
	// install time.
	Resources() []ResourceSpec
}

// validateSpecs checks a driver's resource table at install time.
func validateSpecs(specs []ResourceSpec) error {
	if len(specs) == 0 {
		return ErrNoResource
	}
	seen := make(map[string]struct{}, len(specs))
	for i := range specs {
		spec := &specs[i]
		if spec.Name == "" {
			return ErrNoName
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDupeName, spec.Name)
		}
		seen[spec.Name] = struct{}{}
		if !spec.Caps.IsValid() {
			return fmt.Errorf("%w: %s", model.ErrBadCapability, spec.Name)
		}
		if int(spec.Count) > wire.MaxData {
			return fmt.Errorf("%w: %s", ErrBadWindow, spec.Name)
		}
		if spec.Caps.CanWrite() && spec.Parse == nil {
			return fmt.Errorf("%w: %s", ErrNoParse, spec.Name)
		}
		if spec.WriteOnGet && spec.Parse == nil {
			return fmt.Errorf("%w: %s", ErrNoParse, spec.Name)
		}
		if spec.AsyncReply && !spec.WriteOnGet {
			return fmt.Errorf("%w: %s", ErrBadReply, spec.Name)
		}
		if (spec.Caps.CanRead() || spec.Caps.CanBroadcast()) && spec.Format == nil {
			return fmt.Errorf("%w: %s", ErrNoFormat, spec.Name)
		}
	}
	return nil
}

// driverIDs decodes an enumerator ROM image: big-endian 16-bit driver
// IDs, one per core.
func driverIDs(data []byte) []uint16 {
	ids := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		ids = append(ids, uint16(data[i])<<8|uint16(data[i+1]))
	}
	return ids
}
