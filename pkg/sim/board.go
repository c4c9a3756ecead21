// Package sim provides an in-memory board speaking the peripheral
// link protocol from the far side.
//
// A Board implements transport.Port: the daemon writes host-to-board
// request packets and reads acknowledgments, read replies, and
// injected autosend updates back. Registers live in a per-core file
// that writes mutate and reads serve, so a daemon run against a Board
// behaves like one run against hardware that acknowledges everything.
// Handlers hook the register file for modelling richer peripherals,
// and the drop knobs swallow replies for timeout testing.
package sim

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/perilink/perilink-go/pkg/wire"
)

// ErrClosed reports use of a closed board.
var ErrClosed = errors.New("simulated board closed")

// registersPerCore is the size of one core's register file. Register
// addresses are a single byte, so writes past the top wrap around.
const registersPerCore = 256

// Handlers customize board behavior. Nil fields keep the defaults:
// writes land in the register file and are acknowledged, reads serve
// the register file.
type Handlers struct {
	// OnWrite runs after a write landed in the register file and its
	// acknowledgment was queued. Use it to model side effects, such
	// as a transaction engine answering through Inject.
	OnWrite func(core, register uint8, data []byte)

	// OnRead can override a read reply's payload. A nil return serves
	// the register file.
	OnRead func(core, register, count uint8) []byte
}

// Board is a simulated board. Write feeds it host packets; Read hands
// back what the board sends. Read supports one concurrent reader, the
// way a serial port does.
type Board struct {
	handlers Handlers

	mu        sync.Mutex
	regs      [wire.MaxCores][registersPerCore]byte
	rxBuf     []byte
	reqs      []*wire.Packet
	dropAcks  int
	dropReads int
	closed    bool

	out     chan []byte
	readBuf []byte
	reqCh   chan *wire.Packet

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewBoard creates a board with zeroed registers.
func NewBoard(handlers Handlers) *Board {
	return &Board{
		handlers: handlers,
		out:      make(chan []byte, 256),
		reqCh:    make(chan *wire.Packet, 256),
		closeCh:  make(chan struct{}),
	}
}

// Read hands the host the next board-to-host bytes, blocking until
// some are available. A closed board reads as io.EOF.
func (b *Board) Read(p []byte) (int, error) {
	if len(b.readBuf) == 0 {
		select {
		case raw := <-b.out:
			b.readBuf = raw
		case <-b.closeCh:
			return 0, io.EOF
		}
	}
	n := copy(p, b.readBuf)
	b.readBuf = b.readBuf[n:]
	return n, nil
}

// Write feeds host-to-board bytes. Complete packets are handled
// immediately; a partial packet waits for the rest.
func (b *Board) Write(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	b.rxBuf = append(b.rxBuf, p...)
	pkts := b.drainLocked()
	b.mu.Unlock()

	for _, pkt := range pkts {
		b.handle(pkt)
	}
	return len(p), nil
}

// Close shuts the board down. Blocked reads return io.EOF.
func (b *Board) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.closeCh)
	})
	return nil
}

// Inject queues an unsolicited autosend packet, as monitored hardware
// would on a state change.
func (b *Board) Inject(core, register uint8, data []byte) error {
	return b.send(&wire.Packet{
		Op:       wire.OpRead,
		Addr:     wire.AddrAutoData,
		Core:     core,
		Register: register,
		Count:    uint8(len(data)),
		Data:     data,
	})
}

// Poke writes registers directly, without acknowledgments or hooks.
// Use it to preload a board persona before the daemon connects.
func (b *Board) Poke(core, register uint8, data []byte) {
	if int(core) >= wire.MaxCores {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range data {
		b.regs[core][(int(register)+i)%registersPerCore] = v
	}
}

// Peek returns a copy of count registers starting at register.
func (b *Board) Peek(core, register uint8, count int) []byte {
	if int(core) >= wire.MaxCores {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, count)
	for i := range out {
		out[i] = b.regs[core][(int(register)+i)%registersPerCore]
	}
	return out
}

// DropAcks swallows the acknowledgments of the next n writes. The
// writes still land in the register file, modelling a lossy link
// rather than a dead peripheral.
func (b *Board) DropAcks(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropAcks += n
}

// DropReads swallows the replies of the next n reads.
func (b *Board) DropReads(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropReads += n
}

// Requests returns every host request handled so far, in order.
func (b *Board) Requests() []*wire.Packet {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*wire.Packet, len(b.reqs))
	copy(out, b.reqs)
	return out
}

// ClearRequests forgets the recorded requests, including any not yet
// taken through TakeRequest.
func (b *Board) ClearRequests() {
	b.mu.Lock()
	b.reqs = b.reqs[:0]
	b.mu.Unlock()
	for {
		select {
		case <-b.reqCh:
		default:
			return
		}
	}
}

// TakeRequest returns the next host request in arrival order, blocking
// up to the timeout. ok is false when none arrived in time.
func (b *Board) TakeRequest(timeout time.Duration) (p *wire.Packet, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-b.reqCh:
		return p, true
	case <-timer.C:
		return nil, false
	case <-b.closeCh:
		return nil, false
	}
}

// drainLocked parses every complete packet sitting in the receive
// buffer. An invalid header byte is skipped to resynchronize.
func (b *Board) drainLocked() []*wire.Packet {
	var pkts []*wire.Packet
	for {
		if len(b.rxBuf) < wire.HeaderSize {
			return pkts
		}
		hdr, err := wire.ParseHeader(b.rxBuf[:wire.HeaderSize])
		if err != nil {
			b.rxBuf = b.rxBuf[1:]
			continue
		}
		need := wire.HeaderSize
		if hdr.Op == wire.OpWrite {
			need += int(hdr.Count)
		}
		if len(b.rxBuf) < need {
			return pkts
		}
		pkt := hdr
		if hdr.Op == wire.OpWrite && hdr.Count > 0 {
			pkt.Data = make([]byte, hdr.Count)
			copy(pkt.Data, b.rxBuf[wire.HeaderSize:need])
		}
		b.rxBuf = append(b.rxBuf[:0], b.rxBuf[need:]...)
		pkts = append(pkts, &pkt)
	}
}

// handle runs one host request: mutate registers, queue the reply,
// fire hooks.
func (b *Board) handle(pkt *wire.Packet) {
	b.mu.Lock()
	b.reqs = append(b.reqs, pkt)
	b.mu.Unlock()
	select {
	case b.reqCh <- pkt:
	default:
	}

	switch pkt.Op {
	case wire.OpWrite:
		b.store(pkt)
		if !b.takeDrop(&b.dropAcks) {
			_ = b.send(ackFor(pkt))
		}
		if fn := b.handlers.OnWrite; fn != nil {
			fn(pkt.Core, pkt.Register, pkt.Data)
		}
	case wire.OpRead:
		var data []byte
		if fn := b.handlers.OnRead; fn != nil {
			data = fn(pkt.Core, pkt.Register, pkt.Count)
		}
		if data == nil {
			data = b.Peek(pkt.Core, pkt.Register, int(pkt.Count))
		}
		if !b.takeDrop(&b.dropReads) {
			_ = b.send(replyFor(pkt, data))
		}
	}
}

// store lands a write in the register file. Fixed addressing keeps
// hitting the same register, the FIFO way; auto-increment advances.
func (b *Board) store(pkt *wire.Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range pkt.Data {
		reg := int(pkt.Register)
		if pkt.Addr != wire.AddrFixed {
			reg += i
		}
		b.regs[pkt.Core][reg%registersPerCore] = v
	}
}

func (b *Board) takeDrop(counter *int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

// send queues one board-to-host packet.
func (b *Board) send(pkt *wire.Packet) error {
	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}
	select {
	case b.out <- raw:
		return nil
	case <-b.closeCh:
		return ErrClosed
	}
}

// ackFor echoes a write back as its acknowledgment.
func ackFor(req *wire.Packet) *wire.Packet {
	return &wire.Packet{
		Op:       wire.OpWrite,
		Addr:     req.Addr,
		Core:     req.Core,
		Register: req.Register,
		Count:    req.Count,
		Data:     req.Data,
	}
}

// replyFor answers a read with register contents.
func replyFor(req *wire.Packet, data []byte) *wire.Packet {
	return &wire.Packet{
		Op:       wire.OpRead,
		Addr:     wire.AddrAutoInc,
		Core:     req.Core,
		Register: req.Register,
		Count:    uint8(len(data)),
		Data:     data,
	}
}
