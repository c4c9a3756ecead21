package wire

// Operation represents the packet operation, held in bits 4-5 of the
// cmd byte.
type Operation uint8

const (
	// OpRead requests register contents from the board.
	OpRead Operation = 0x10

	// OpWrite sets register contents on the board.
	OpWrite Operation = 0x20
)

// OpMask extracts the operation bits from a cmd byte.
const OpMask uint8 = 0x30

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a valid packet operation.
func (o Operation) IsValid() bool {
	return o == OpRead || o == OpWrite
}

// AddrMode represents the register addressing mode, held in bits 2-3 of
// the cmd byte.
type AddrMode uint8

const (
	// AddrAutoInc advances the register address after each data byte.
	// This is the normal mode for multi-byte reads and writes.
	AddrAutoInc AddrMode = 0x04

	// AddrFixed writes every data byte to the same register address.
	// Used by FIFO-style registers such as a character output queue.
	AddrFixed AddrMode = 0x08

	// AddrAutoData marks a board-to-host packet as unsolicited: the
	// board sent it because monitored hardware state changed, not in
	// reply to a host request.
	AddrAutoData AddrMode = 0x0C
)

// AddrMask extracts the addressing bits from a cmd byte.
const AddrMask uint8 = 0x0C

// String returns the addressing mode name.
func (a AddrMode) String() string {
	switch a {
	case AddrAutoInc:
		return "AutoInc"
	case AddrFixed:
		return "Fixed"
	case AddrAutoData:
		return "AutoData"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the addressing mode is valid.
func (a AddrMode) IsValid() bool {
	return a == AddrAutoInc || a == AddrFixed || a == AddrAutoData
}
