package wire

import (
	"errors"
	"fmt"
)

// Packet sizing.
const (
	// HeaderSize is the fixed packet header length in bytes.
	HeaderSize = 4

	// MaxData is the maximum number of data bytes in one packet.
	MaxData = 64

	// MaxPacket is the largest possible wire size of one packet.
	MaxPacket = HeaderSize + MaxData

	// MaxCores is the number of peripheral instances addressable on
	// one board.
	MaxCores = 16
)

// Packet decode errors.
var (
	ErrShortPacket  = errors.New("packet shorter than header")
	ErrBadOperation = errors.New("invalid operation bits")
	ErrBadAddrMode  = errors.New("invalid addressing bits")
	ErrBadCore      = errors.New("core id out of range")
	ErrBadCount     = errors.New("count out of range")
	ErrDataLength   = errors.New("data length does not match count")
)

// Packet is one unit of the peripheral link protocol: a 4-byte header
// plus up to 64 data bytes.
type Packet struct {
	// Op is the operation (read or write).
	Op Operation

	// Addr is the register addressing mode. AddrAutoData marks an
	// unsolicited board-to-host update.
	Addr AddrMode

	// Core is the target peripheral instance id (0-15).
	Core uint8

	// Register is the starting register address.
	Register uint8

	// Count is the number of data bytes (0-64). For a read request
	// it is the number of registers to read back.
	Count uint8

	// Data holds the payload. Nil for a host-to-board read request.
	Data []byte
}

// Cmd returns the packet's cmd byte.
func (p *Packet) Cmd() uint8 {
	return uint8(p.Op) | uint8(p.Addr)
}

// Validate checks the packet's header fields and data length.
func (p *Packet) Validate() error {
	if !p.Op.IsValid() {
		return fmt.Errorf("%w: 0x%02x", ErrBadOperation, uint8(p.Op))
	}
	if !p.Addr.IsValid() {
		return fmt.Errorf("%w: 0x%02x", ErrBadAddrMode, uint8(p.Addr))
	}
	if p.Core >= MaxCores {
		return fmt.Errorf("%w: %d", ErrBadCore, p.Core)
	}
	if int(p.Count) > MaxData {
		return fmt.Errorf("%w: %d", ErrBadCount, p.Count)
	}
	if p.Data != nil && len(p.Data) != int(p.Count) {
		return fmt.Errorf("%w: count=%d data=%d", ErrDataLength, p.Count, len(p.Data))
	}
	return nil
}

// Marshal encodes the packet to wire bytes: the header followed by the
// packet's data, if any. A read request marshals to the bare header.
func (p *Packet) Marshal() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, HeaderSize+len(p.Data))
	buf = append(buf, p.Cmd(), p.Core, p.Register, p.Count)
	buf = append(buf, p.Data...)
	return buf, nil
}

// ParseHeader decodes the 4-byte header without touching any payload.
// Used by the framing layer to learn how many data bytes follow.
func ParseHeader(hdr []byte) (Packet, error) {
	if len(hdr) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	p := Packet{
		Op:       Operation(hdr[0] & OpMask),
		Addr:     AddrMode(hdr[0] & AddrMask),
		Core:     hdr[1],
		Register: hdr[2],
		Count:    hdr[3],
	}
	if !p.Op.IsValid() {
		return Packet{}, fmt.Errorf("%w: 0x%02x", ErrBadOperation, hdr[0])
	}
	if !p.Addr.IsValid() {
		return Packet{}, fmt.Errorf("%w: 0x%02x", ErrBadAddrMode, hdr[0])
	}
	if p.Core >= MaxCores {
		return Packet{}, fmt.Errorf("%w: %d", ErrBadCore, p.Core)
	}
	if int(p.Count) > MaxData {
		return Packet{}, fmt.Errorf("%w: %d", ErrBadCount, p.Count)
	}
	return p, nil
}

// Decode parses a complete packet: header plus payload. The raw slice
// must hold exactly the header and count data bytes; the data is copied
// out of raw.
func Decode(raw []byte) (*Packet, error) {
	p, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if len(raw) != HeaderSize+int(p.Count) {
		return nil, fmt.Errorf("%w: count=%d have=%d", ErrDataLength, p.Count, len(raw)-HeaderSize)
	}
	if p.Count > 0 {
		p.Data = make([]byte, p.Count)
		copy(p.Data, raw[HeaderSize:])
	}
	return &p, nil
}

// String renders the packet for logs: operation, addressing, addressing
// fields, and payload in hex.
func (p *Packet) String() string {
	if p.Count == 0 || p.Data == nil {
		return fmt.Sprintf("%s/%s core=%d reg=0x%02x cnt=%d",
			p.Op, p.Addr, p.Core, p.Register, p.Count)
	}
	return fmt.Sprintf("%s/%s core=%d reg=0x%02x cnt=%d data=% 02x",
		p.Op, p.Addr, p.Core, p.Register, p.Count, p.Data)
}
