package wire

// Kind classifies an inbound board-to-host packet.
type Kind uint8

const (
	// KindMalformed marks a packet that failed structural checks.
	KindMalformed Kind = iota

	// KindWriteAck acknowledges a write; the payload echoes the
	// written bytes and carries no new information.
	KindWriteAck

	// KindReadReply answers a read request with register contents.
	KindReadReply

	// KindAutosend is an unsolicited update sent because monitored
	// hardware state changed.
	KindAutosend
)

// String returns the classification name.
func (k Kind) String() string {
	switch k {
	case KindWriteAck:
		return "WriteAck"
	case KindReadReply:
		return "ReadReply"
	case KindAutosend:
		return "Autosend"
	default:
		return "Malformed"
	}
}

// EncodeWrite builds a write request with auto-increment addressing.
// Count is taken from the data length.
func EncodeWrite(core, register uint8, data []byte) *Packet {
	return &Packet{
		Op:       OpWrite,
		Addr:     AddrAutoInc,
		Core:     core,
		Register: register,
		Count:    uint8(len(data)),
		Data:     data,
	}
}

// EncodeWriteFixed builds a write request with fixed addressing: every
// data byte lands on the same register. Used for FIFO registers.
func EncodeWriteFixed(core, register uint8, data []byte) *Packet {
	return &Packet{
		Op:       OpWrite,
		Addr:     AddrFixed,
		Core:     core,
		Register: register,
		Count:    uint8(len(data)),
		Data:     data,
	}
}

// EncodeRead builds a read request for count registers starting at
// register. The request itself carries no data bytes.
func EncodeRead(core, register, count uint8) *Packet {
	return &Packet{
		Op:       OpRead,
		Addr:     AddrAutoInc,
		Core:     core,
		Register: register,
		Count:    count,
	}
}

// Classify determines what an inbound packet is. Auto-data addressing
// always means an unsolicited autosend; otherwise the operation bits
// decide between a write acknowledgment and a read reply.
func Classify(p *Packet) Kind {
	if p.Validate() != nil {
		return KindMalformed
	}
	if p.Addr == AddrAutoData {
		return KindAutosend
	}
	if p.Op == OpWrite {
		return KindWriteAck
	}
	return KindReadReply
}

// Shape is the correlation key matching a reply to its request. The
// protocol carries no transaction ids; the reply kind together with the
// register and count fields is all there is.
type Shape struct {
	Kind     Kind
	Register uint8
	Count    uint8
}

// Shape returns the packet's correlation shape.
func (p *Packet) Shape() Shape {
	return Shape{Kind: Classify(p), Register: p.Register, Count: p.Count}
}

// ReplyShape returns the shape of the reply this request expects: a
// write acknowledgment for a write, a read reply for a read, echoing
// the request's register and count.
func (p *Packet) ReplyShape() Shape {
	kind := KindReadReply
	if p.Op == OpWrite {
		kind = KindWriteAck
	}
	return Shape{Kind: kind, Register: p.Register, Count: p.Count}
}
