package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/wire"
)

// Framing constants.
const (
	// MaxResyncDiscard is the number of bytes the reader will discard
	// hunting for a valid header before giving up on the stream.
	MaxResyncDiscard = 4096
)

// Framing errors.
var (
	// ErrResyncFailed indicates no valid header was found within
	// MaxResyncDiscard bytes.
	ErrResyncFailed = errors.New("could not resynchronize packet stream")
)

// PacketWriter writes host packets to the board link.
type PacketWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Capture support (optional)
	logger  log.Logger
	boardID string
}

// NewPacketWriter creates a new packet writer.
func NewPacketWriter(w io.Writer) *PacketWriter {
	return &PacketWriter{w: w}
}

// SetLogger configures capture for this writer.
// Pass nil to disable capture.
func (pw *PacketWriter) SetLogger(logger log.Logger, boardID string) {
	pw.logger = logger
	pw.boardID = boardID
}

// WritePacket marshals and writes one packet.
// Thread-safe: can be called from multiple goroutines.
func (pw *PacketWriter) WritePacket(p *wire.Packet) error {
	raw, err := p.Marshal()
	if err != nil {
		return err
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, err := pw.w.Write(raw); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}

	// Log the raw bytes if capture is configured
	if pw.logger != nil {
		pw.logger.Log(makeRawEvent(pw.boardID, raw, log.DirectionOut))
	}

	return nil
}

// PacketReader reads board packets from the link.
//
// Every board-to-host packet carries count payload bytes after its
// header, so the reader never needs a length prefix: it reads a header,
// validates it, then reads exactly the bytes the header promises. An
// invalid header starts a resync hunt that discards one byte at a time.
//
// Not safe for concurrent use; the link owns a single reader goroutine.
type PacketReader struct {
	r    io.Reader
	buf  [wire.MaxPacket]byte
	have int

	discarded int

	// Capture support (optional)
	logger  log.Logger
	boardID string
}

// NewPacketReader creates a new packet reader.
func NewPacketReader(r io.Reader) *PacketReader {
	return &PacketReader{r: r}
}

// SetLogger configures capture for this reader.
// Pass nil to disable capture.
func (pr *PacketReader) SetLogger(logger log.Logger, boardID string) {
	pr.logger = logger
	pr.boardID = boardID
}

// Discarded returns the total number of bytes dropped during resync
// hunts since the reader was created.
func (pr *PacketReader) Discarded() int {
	return pr.discarded
}

// ReadPacket reads the next packet from the stream.
// Returns io.EOF when the stream ends cleanly between packets.
func (pr *PacketReader) ReadPacket() (*wire.Packet, error) {
	dropped := 0
	for {
		if err := pr.fill(wire.HeaderSize); err != nil {
			return nil, err
		}

		hdr, err := wire.ParseHeader(pr.buf[:wire.HeaderSize])
		if err != nil {
			// Hunt for the next plausible header one byte at a time
			pr.shift(1)
			dropped++
			pr.discarded++
			if dropped >= MaxResyncDiscard {
				pr.logResync(dropped, false)
				return nil, ErrResyncFailed
			}
			continue
		}

		need := wire.HeaderSize + int(hdr.Count)
		if err := pr.fill(need); err != nil {
			return nil, err
		}

		pkt, err := wire.Decode(pr.buf[:need])
		if err != nil {
			pr.shift(1)
			dropped++
			pr.discarded++
			continue
		}

		if dropped > 0 {
			pr.logResync(dropped, true)
		}
		if pr.logger != nil {
			raw := make([]byte, need)
			copy(raw, pr.buf[:need])
			pr.logger.Log(makeRawEvent(pr.boardID, raw, log.DirectionIn))
		}

		pr.shift(need)
		return pkt, nil
	}
}

// fill reads from the stream until at least n buffered bytes are
// available. Bytes received alongside an error are kept.
func (pr *PacketReader) fill(n int) error {
	for pr.have < n {
		m, err := pr.r.Read(pr.buf[pr.have:])
		pr.have += m
		if pr.have >= n {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// shift drops the first n buffered bytes.
func (pr *PacketReader) shift(n int) {
	copy(pr.buf[:], pr.buf[n:pr.have])
	pr.have -= n
}

// logResync records a resync hunt in the capture stream.
func (pr *PacketReader) logResync(dropped int, recovered bool) {
	if pr.logger == nil {
		return
	}
	msg := "stream resynchronized"
	if !recovered {
		msg = "stream resync failed"
	}
	pr.logger.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   pr.boardID,
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: msg,
			Context: fmt.Sprintf("discarded %d bytes", dropped),
		},
	})
}

// makeRawEvent creates a capture event for bytes on the link.
func makeRawEvent(boardID string, raw []byte, direction log.Direction) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		BoardID:   boardID,
		Direction: direction,
		Layer:     log.LayerTransport,
		Category:  log.CategoryPacket,
		Raw: &log.RawEvent{
			Size: len(raw),
			Data: raw,
		},
	}
}
