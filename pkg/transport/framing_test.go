package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/wire"
)

func TestPacketWriterReader(t *testing.T) {
	tests := []struct {
		name string
		pkt  *wire.Packet
	}{
		{
			name: "single byte reply",
			pkt: &wire.Packet{
				Op: wire.OpRead, Addr: wire.AddrAutoInc,
				Core: 3, Register: 0, Count: 1, Data: []byte{0x02},
			},
		},
		{
			name: "write ack with echoed data",
			pkt: &wire.Packet{
				Op: wire.OpWrite, Addr: wire.AddrAutoInc,
				Core: 1, Register: 1, Count: 1, Data: []byte{0x05},
			},
		},
		{
			name: "autosend update",
			pkt: &wire.Packet{
				Op: wire.OpWrite, Addr: wire.AddrAutoData,
				Core: 4, Register: 0, Count: 2, Data: []byte{0x00, 0x01},
			},
		},
		{
			name: "max payload",
			pkt: &wire.Packet{
				Op: wire.OpWrite, Addr: wire.AddrFixed,
				Core: 2, Register: 2, Count: wire.MaxData,
				Data: bytes.Repeat([]byte{0xAB}, wire.MaxData),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			writer := NewPacketWriter(buf)
			if err := writer.WritePacket(tt.pkt); err != nil {
				t.Fatalf("WritePacket failed: %v", err)
			}

			// Check wire size
			expectedSize := wire.HeaderSize + len(tt.pkt.Data)
			if buf.Len() != expectedSize {
				t.Errorf("wire size = %d, want %d", buf.Len(), expectedSize)
			}

			reader := NewPacketReader(buf)
			got, err := reader.ReadPacket()
			if err != nil {
				t.Fatalf("ReadPacket failed: %v", err)
			}

			if got.Op != tt.pkt.Op || got.Addr != tt.pkt.Addr {
				t.Errorf("cmd mismatch: got %s/%s, want %s/%s", got.Op, got.Addr, tt.pkt.Op, tt.pkt.Addr)
			}
			if got.Core != tt.pkt.Core || got.Register != tt.pkt.Register || got.Count != tt.pkt.Count {
				t.Errorf("header mismatch: got core=%d reg=%d cnt=%d", got.Core, got.Register, got.Count)
			}
			if !bytes.Equal(got.Data, tt.pkt.Data) {
				t.Errorf("payload mismatch: got %v, want %v", got.Data, tt.pkt.Data)
			}
		})
	}
}

func TestPacketWriterReadRequestIsBareHeader(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewPacketWriter(buf)

	// A read request promises count reply bytes but carries none itself
	if err := writer.WritePacket(wire.EncodeRead(3, 0, 1)); err != nil {
		t.Fatalf("WritePacket failed: %v", err)
	}

	if buf.Len() != wire.HeaderSize {
		t.Errorf("read request wire size = %d, want %d", buf.Len(), wire.HeaderSize)
	}
}

func TestPacketWriterRejectsInvalid(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewPacketWriter(buf)

	bad := &wire.Packet{
		Op: wire.OpWrite, Addr: wire.AddrAutoInc,
		Core: wire.MaxCores, Register: 0, Count: 1, Data: []byte{1},
	}
	if err := writer.WritePacket(bad); !errors.Is(err, wire.ErrBadCore) {
		t.Errorf("expected ErrBadCore, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("invalid packet reached the wire: %d bytes", buf.Len())
	}
}

func TestPacketReaderResyncsOnGarbage(t *testing.T) {
	buf := new(bytes.Buffer)

	// Garbage that can never parse as a header: op bits 0x30 are invalid
	buf.Write([]byte{0x00, 0x00, 0x00, 0xFF, 0x30})

	writer := NewPacketWriter(buf)
	want := &wire.Packet{
		Op: wire.OpRead, Addr: wire.AddrAutoInc,
		Core: 3, Register: 0, Count: 1, Data: []byte{0x02},
	}
	if err := writer.WritePacket(want); err != nil {
		t.Fatalf("WritePacket failed: %v", err)
	}

	reader := NewPacketReader(buf)
	got, err := reader.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}

	if got.Core != want.Core || got.Register != want.Register || !bytes.Equal(got.Data, want.Data) {
		t.Errorf("packet after resync mismatch: got %s", got)
	}
	if reader.Discarded() != 5 {
		t.Errorf("Discarded() = %d, want 5", reader.Discarded())
	}
}

func TestPacketReaderResyncFailed(t *testing.T) {
	// A long run of bytes with no valid header in any window
	data := bytes.Repeat([]byte{0x00}, MaxResyncDiscard+wire.HeaderSize+8)

	reader := NewPacketReader(bytes.NewReader(data))
	_, err := reader.ReadPacket()
	if !errors.Is(err, ErrResyncFailed) {
		t.Errorf("expected ErrResyncFailed, got %v", err)
	}
}

func TestPacketReaderTruncatedPayload(t *testing.T) {
	// Header promising 4 data bytes, stream ends after 2
	data := []byte{uint8(wire.OpRead) | uint8(wire.AddrAutoInc), 0x01, 0x00, 0x04, 0xAA, 0xBB}

	reader := NewPacketReader(bytes.NewReader(data))
	_, err := reader.ReadPacket()
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestPacketReaderEOF(t *testing.T) {
	reader := NewPacketReader(new(bytes.Buffer))

	_, err := reader.ReadPacket()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestPacketReaderBackToBack(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewPacketWriter(buf)

	packets := []*wire.Packet{
		{Op: wire.OpRead, Addr: wire.AddrAutoInc, Core: 3, Register: 0, Count: 1, Data: []byte{0x02}},
		{Op: wire.OpWrite, Addr: wire.AddrAutoInc, Core: 1, Register: 1, Count: 1, Data: []byte{0x05}},
		{Op: wire.OpWrite, Addr: wire.AddrAutoData, Core: 4, Register: 0, Count: 2, Data: []byte{0x01, 0x00}},
	}

	for _, p := range packets {
		if err := writer.WritePacket(p); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}

	reader := NewPacketReader(buf)
	for i, want := range packets {
		got, err := reader.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d failed: %v", i, err)
		}
		if got.Core != want.Core || !bytes.Equal(got.Data, want.Data) {
			t.Errorf("packet %d mismatch: got %s, want %s", i, got, want)
		}
	}

	// Should get EOF after all packets
	_, err := reader.ReadPacket()
	if err != io.EOF {
		t.Errorf("expected EOF after all packets, got %v", err)
	}
}

// capturingLogger records capture events for testing.
type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *capturingLogger) Log(event log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturingLogger) all() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]log.Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestFramingCapturesRawBytes(t *testing.T) {
	buf := new(bytes.Buffer)
	capture := &capturingLogger{}

	writer := NewPacketWriter(buf)
	writer.SetLogger(capture, "board-1")

	pkt := &wire.Packet{
		Op: wire.OpWrite, Addr: wire.AddrAutoInc,
		Core: 1, Register: 1, Count: 1, Data: []byte{0x05},
	}
	if err := writer.WritePacket(pkt); err != nil {
		t.Fatalf("WritePacket failed: %v", err)
	}

	reader := NewPacketReader(buf)
	reader.SetLogger(capture, "board-1")
	if _, err := reader.ReadPacket(); err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}

	events := capture.all()
	if len(events) != 2 {
		t.Fatalf("got %d capture events, want 2", len(events))
	}

	out, in := events[0], events[1]
	if out.Direction != log.DirectionOut || in.Direction != log.DirectionIn {
		t.Errorf("directions: got %v then %v", out.Direction, in.Direction)
	}
	for _, e := range events {
		if e.BoardID != "board-1" {
			t.Errorf("BoardID = %q, want %q", e.BoardID, "board-1")
		}
		if e.Layer != log.LayerTransport {
			t.Errorf("Layer = %v, want %v", e.Layer, log.LayerTransport)
		}
		if e.Raw == nil {
			t.Fatal("Raw is nil")
		}
		if e.Raw.Size != wire.HeaderSize+1 {
			t.Errorf("Raw.Size = %d, want %d", e.Raw.Size, wire.HeaderSize+1)
		}
	}
}

func TestFramingCapturesResync(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.Write([]byte{0xFF, 0xFF})

	writer := NewPacketWriter(buf)
	if err := writer.WritePacket(wire.EncodeWrite(1, 0, []byte{0x01})); err != nil {
		t.Fatalf("WritePacket failed: %v", err)
	}

	capture := &capturingLogger{}
	reader := NewPacketReader(buf)
	reader.SetLogger(capture, "board-1")

	if _, err := reader.ReadPacket(); err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}

	events := capture.all()
	if len(events) != 2 {
		t.Fatalf("got %d capture events, want 2 (resync error + raw packet)", len(events))
	}
	if events[0].Category != log.CategoryError || events[0].Error == nil {
		t.Errorf("first event is not a resync error: %+v", events[0])
	}
	if events[1].Raw == nil {
		t.Errorf("second event is not the recovered packet")
	}
}

func BenchmarkPacketWrite(b *testing.B) {
	buf := new(bytes.Buffer)
	writer := NewPacketWriter(buf)
	pkt := &wire.Packet{
		Op: wire.OpWrite, Addr: wire.AddrAutoInc,
		Core: 1, Register: 0, Count: 8, Data: bytes.Repeat([]byte{0x55}, 8),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		writer.WritePacket(pkt)
	}
}

func BenchmarkPacketRead(b *testing.B) {
	// Prepare a buffer with many packets
	buf := new(bytes.Buffer)
	writer := NewPacketWriter(buf)
	pkt := &wire.Packet{
		Op: wire.OpWrite, Addr: wire.AddrAutoData,
		Core: 4, Register: 0, Count: 8, Data: bytes.Repeat([]byte{0x55}, 8),
	}
	for i := 0; i < 1000; i++ {
		writer.WritePacket(pkt)
	}
	data := buf.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader := NewPacketReader(bytes.NewReader(data))
		for {
			_, err := reader.ReadPacket()
			if err == io.EOF {
				break
			}
			if err != nil {
				b.Fatal(err)
			}
		}
	}
}
