package sim

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/perilink/perilink-go/pkg/transport"
	"github.com/perilink/perilink-go/pkg/wire"
)

// feed marshals a host request and writes it to the board.
func feed(t *testing.T, b *Board, pkt *wire.Packet) {
	t.Helper()
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := b.Write(raw); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

// nextPacket reads one board-to-host packet through the real framing
// layer, failing the test if none arrives.
func nextPacket(t *testing.T, r *transport.PacketReader) *wire.Packet {
	t.Helper()
	type result struct {
		pkt *wire.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pkt, err := r.ReadPacket()
		ch <- result{pkt, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("ReadPacket failed: %v", res.err)
		}
		return res.pkt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a board packet")
	}
	return nil
}

func TestWriteAcknowledged(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	feed(t, b, wire.EncodeWrite(1, 0x10, []byte{0xAA, 0xBB}))

	ack := nextPacket(t, reader)
	if kind := wire.Classify(ack); kind != wire.KindWriteAck {
		t.Fatalf("Classify = %v, want %v", kind, wire.KindWriteAck)
	}
	if ack.Core != 1 || ack.Register != 0x10 || ack.Count != 2 {
		t.Errorf("ack header = core %d reg 0x%02x count %d, want 1/0x10/2",
			ack.Core, ack.Register, ack.Count)
	}
	if !bytes.Equal(ack.Data, []byte{0xAA, 0xBB}) {
		t.Errorf("ack data = %x, want aabb", ack.Data)
	}
	if got := b.Peek(1, 0x10, 2); !bytes.Equal(got, []byte{0xAA, 0xBB}) {
		t.Errorf("registers = %x, want aabb", got)
	}
}

func TestStoreAddressing(t *testing.T) {
	tests := []struct {
		name     string
		pkt      *wire.Packet
		register uint8
		count    int
		want     []byte
	}{
		{
			name:     "auto-increment spreads bytes",
			pkt:      wire.EncodeWrite(1, 0x10, []byte{1, 2, 3}),
			register: 0x10,
			count:    3,
			want:     []byte{1, 2, 3},
		},
		{
			name:     "fixed addressing hits one register",
			pkt:      wire.EncodeWriteFixed(1, 0x20, []byte{1, 2, 3}),
			register: 0x20,
			count:    2,
			want:     []byte{3, 0},
		},
		{
			name:     "register address wraps",
			pkt:      wire.EncodeWrite(1, 0xFE, []byte{0xAA, 0xBB, 0xCC}),
			register: 0xFE,
			count:    3,
			want:     []byte{0xAA, 0xBB, 0xCC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBoard(Handlers{})
			defer b.Close()

			feed(t, b, tt.pkt)
			if got := b.Peek(1, tt.register, tt.count); !bytes.Equal(got, tt.want) {
				t.Errorf("registers = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestReadServesRegisters(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	b.Poke(2, 0x05, []byte{0xDE, 0xAD})
	feed(t, b, wire.EncodeRead(2, 0x05, 2))

	reply := nextPacket(t, reader)
	if kind := wire.Classify(reply); kind != wire.KindReadReply {
		t.Fatalf("Classify = %v, want %v", kind, wire.KindReadReply)
	}
	if reply.Core != 2 || reply.Register != 0x05 {
		t.Errorf("reply header = core %d reg 0x%02x, want 2/0x05", reply.Core, reply.Register)
	}
	if !bytes.Equal(reply.Data, []byte{0xDE, 0xAD}) {
		t.Errorf("reply data = %x, want dead", reply.Data)
	}
}

func TestOnReadOverride(t *testing.T) {
	b := NewBoard(Handlers{
		OnRead: func(core, register, count uint8) []byte {
			if register == 0x40 {
				return []byte{0x12, 0x34}
			}
			return nil
		},
	})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	feed(t, b, wire.EncodeRead(0, 0x40, 2))
	if reply := nextPacket(t, reader); !bytes.Equal(reply.Data, []byte{0x12, 0x34}) {
		t.Errorf("override data = %x, want 1234", reply.Data)
	}

	// A nil return falls back to the register file.
	feed(t, b, wire.EncodeRead(0, 0x41, 2))
	if reply := nextPacket(t, reader); !bytes.Equal(reply.Data, []byte{0, 0}) {
		t.Errorf("fallback data = %x, want 0000", reply.Data)
	}
}

func TestOnWriteInjectsAfterAck(t *testing.T) {
	var b *Board
	b = NewBoard(Handlers{
		OnWrite: func(core, register uint8, data []byte) {
			if register == 0x08 {
				_ = b.Inject(core, 0x30, []byte{0x07})
			}
		},
	})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	feed(t, b, wire.EncodeWrite(0, 0x08, []byte{0x01}))

	first := nextPacket(t, reader)
	if kind := wire.Classify(first); kind != wire.KindWriteAck {
		t.Fatalf("first packet Classify = %v, want %v", kind, wire.KindWriteAck)
	}
	second := nextPacket(t, reader)
	if kind := wire.Classify(second); kind != wire.KindAutosend {
		t.Fatalf("second packet Classify = %v, want %v", kind, wire.KindAutosend)
	}
	if second.Register != 0x30 || !bytes.Equal(second.Data, []byte{0x07}) {
		t.Errorf("autosend = reg 0x%02x data %x, want 0x30/07", second.Register, second.Data)
	}
}

func TestDropAcks(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	b.DropAcks(1)
	feed(t, b, wire.EncodeWrite(0, 0x10, []byte{0x01}))
	feed(t, b, wire.EncodeWrite(0, 0x11, []byte{0x02}))

	// The first ack was swallowed; the write still landed.
	ack := nextPacket(t, reader)
	if ack.Register != 0x11 {
		t.Errorf("ack register = 0x%02x, want 0x11", ack.Register)
	}
	if got := b.Peek(0, 0x10, 1); !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("dropped-ack write missing: registers = %x, want 01", got)
	}
}

func TestDropReads(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	b.DropReads(1)
	feed(t, b, wire.EncodeRead(0, 0x10, 1))
	feed(t, b, wire.EncodeRead(0, 0x11, 1))

	if reply := nextPacket(t, reader); reply.Register != 0x11 {
		t.Errorf("reply register = 0x%02x, want 0x11", reply.Register)
	}
}

func TestResyncSkipsGarbage(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	raw, err := wire.EncodeWrite(0, 0x10, []byte{0x42}).Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := b.Write(append([]byte{0xFF, 0xFF}, raw...)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if ack := nextPacket(t, reader); ack.Register != 0x10 {
		t.Errorf("ack register = 0x%02x, want 0x10", ack.Register)
	}
	if got := len(b.Requests()); got != 1 {
		t.Errorf("recorded requests = %d, want 1", got)
	}
}

func TestPartialWriteReassembly(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	raw, err := wire.EncodeWrite(0, 0x05, []byte{0x09}).Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := b.Write(raw[:2]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := len(b.Requests()); got != 0 {
		t.Fatalf("partial packet already handled: %d requests", got)
	}
	if _, err := b.Write(raw[2:]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if ack := nextPacket(t, reader); ack.Register != 0x05 {
		t.Errorf("ack register = 0x%02x, want 0x05", ack.Register)
	}
}

func TestInjectDeliversAutosend(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()
	reader := transport.NewPacketReader(b)

	if err := b.Inject(3, 0x30, []byte{0x05, 0x06}); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}

	pkt := nextPacket(t, reader)
	if kind := wire.Classify(pkt); kind != wire.KindAutosend {
		t.Fatalf("Classify = %v, want %v", kind, wire.KindAutosend)
	}
	if pkt.Core != 3 || pkt.Register != 0x30 || !bytes.Equal(pkt.Data, []byte{0x05, 0x06}) {
		t.Errorf("autosend = core %d reg 0x%02x data %x, want 3/0x30/0506",
			pkt.Core, pkt.Register, pkt.Data)
	}
}

func TestInjectRejectsBadCore(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()

	if err := b.Inject(wire.MaxCores, 0, []byte{1}); !errors.Is(err, wire.ErrBadCore) {
		t.Errorf("expected ErrBadCore, got %v", err)
	}
}

func TestTakeRequest(t *testing.T) {
	b := NewBoard(Handlers{})
	defer b.Close()

	if _, ok := b.TakeRequest(20 * time.Millisecond); ok {
		t.Fatal("TakeRequest returned a packet on an idle board")
	}

	feed(t, b, wire.EncodeWrite(0, 0x10, []byte{0x01}))
	feed(t, b, wire.EncodeRead(0, 0x11, 1))

	first, ok := b.TakeRequest(time.Second)
	if !ok {
		t.Fatal("TakeRequest timed out")
	}
	if first.Op != wire.OpWrite || first.Register != 0x10 {
		t.Errorf("first request = %s reg 0x%02x, want write/0x10", first.Op, first.Register)
	}
	second, ok := b.TakeRequest(time.Second)
	if !ok {
		t.Fatal("TakeRequest timed out")
	}
	if second.Op != wire.OpRead || second.Register != 0x11 {
		t.Errorf("second request = %s reg 0x%02x, want read/0x11", second.Op, second.Register)
	}

	if got := len(b.Requests()); got != 2 {
		t.Errorf("recorded requests = %d, want 2", got)
	}
	b.ClearRequests()
	if got := len(b.Requests()); got != 0 {
		t.Errorf("requests after clear = %d, want 0", got)
	}
}

func TestCloseUnblocksRead(t *testing.T) {
	b := NewBoard(Handlers{})

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 8)
		_, err := b.Read(buf)
		done <- err
	}()

	b.Close()
	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("Read after Close = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not unblock on Close")
	}

	if _, err := b.Write([]byte{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
	// Closing again is harmless.
	b.Close()
}
