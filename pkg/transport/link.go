package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/wire"
)

// Link states.
type LinkState int32

const (
	// LinkDown indicates no port is attached.
	LinkDown LinkState = iota

	// LinkOpening indicates the link is starting up.
	LinkOpening

	// LinkUp indicates an active link.
	LinkUp

	// LinkClosing indicates shutdown in progress.
	LinkClosing
)

// String returns the link state name.
func (s LinkState) String() string {
	switch s {
	case LinkDown:
		return "DOWN"
	case LinkOpening:
		return "OPENING"
	case LinkUp:
		return "UP"
	case LinkClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Link errors.
var (
	ErrLinkDown = errors.New("link down")
	ErrLinkUp   = errors.New("link already up")
	ErrTxFull   = errors.New("transmit queue full")
)

// DefaultTxQueueSize is the default transmit queue depth.
const DefaultTxQueueSize = 32

// LinkConfig configures a board link.
type LinkConfig struct {
	// BoardID identifies the board in capture events.
	BoardID string

	// TxQueueSize is the transmit queue depth (default: 32).
	TxQueueSize int

	// Logger receives capture events (nil disables capture).
	Logger log.Logger
}

// LinkHandler handles link events.
type LinkHandler interface {
	// OnPacket is called for each packet received from the board.
	// It runs on the link's reader goroutine.
	OnPacket(p *wire.Packet)

	// OnStateChange is called when the link state changes.
	OnStateChange(oldState, newState LinkState)

	// OnError is called when a link error occurs.
	OnError(err error)
}

// Link drives one board over a Port. A writer goroutine drains the
// transmit queue and a reader goroutine delivers inbound packets to
// the handler.
type Link struct {
	config  LinkConfig
	handler LinkHandler

	port   Port
	reader *PacketReader
	writer *PacketWriter

	state     atomic.Int32
	closeOnce sync.Once
	closeCh   chan struct{}
	readDone  chan struct{}
	writeDone chan struct{}

	txCh chan *wire.Packet

	mu sync.RWMutex
}

// NewLink creates a new link (not yet attached to a port).
func NewLink(config LinkConfig, handler LinkHandler) *Link {
	if config.TxQueueSize == 0 {
		config.TxQueueSize = DefaultTxQueueSize
	}

	l := &Link{
		config:  config,
		handler: handler,
	}
	l.state.Store(int32(LinkDown))

	return l
}

// State returns the current link state.
func (l *Link) State() LinkState {
	return LinkState(l.state.Load())
}

// Open attaches the link to a port and starts its goroutines.
func (l *Link) Open(port Port) error {
	if !l.state.CompareAndSwap(int32(LinkDown), int32(LinkOpening)) {
		return ErrLinkUp
	}

	l.notifyStateChange(LinkDown, LinkOpening)

	l.mu.Lock()
	l.port = port
	l.reader = NewPacketReader(port)
	l.writer = NewPacketWriter(port)
	if l.config.Logger != nil {
		l.reader.SetLogger(l.config.Logger, l.config.BoardID)
		l.writer.SetLogger(l.config.Logger, l.config.BoardID)
	}
	l.closeCh = make(chan struct{})
	l.readDone = make(chan struct{})
	l.writeDone = make(chan struct{})
	l.txCh = make(chan *wire.Packet, l.config.TxQueueSize)
	l.mu.Unlock()

	go l.readLoop()
	go l.writeLoop()

	l.state.Store(int32(LinkUp))
	l.notifyStateChange(LinkOpening, LinkUp)

	return nil
}

// Send queues a packet for transmission. Send never blocks: when the
// transmit queue is full it fails fast with ErrTxFull so the caller can
// report back-pressure instead of stalling.
func (l *Link) Send(p *wire.Packet) error {
	if l.State() != LinkUp {
		return ErrLinkDown
	}

	l.mu.RLock()
	tx := l.txCh
	l.mu.RUnlock()

	if tx == nil {
		return ErrLinkDown
	}

	select {
	case tx <- p:
		return nil
	default:
		return ErrTxFull
	}
}

// Discarded returns the number of bytes the reader has dropped during
// resync hunts, for diagnostics.
func (l *Link) Discarded() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.reader == nil {
		return 0
	}
	return l.reader.Discarded()
}

// Close shuts the link down and closes the port.
// It is safe to call Close multiple times.
func (l *Link) Close() error {
	var closeErr error

	l.closeOnce.Do(func() {
		prev := l.State()
		if prev == LinkDown {
			return
		}

		l.state.Store(int32(LinkClosing))
		l.notifyStateChange(prev, LinkClosing)

		close(l.closeCh)

		// Closing the port unblocks the reader and any pending write
		l.mu.Lock()
		port := l.port
		l.port = nil
		l.mu.Unlock()
		if port != nil {
			closeErr = port.Close()
		}

		<-l.readDone
		<-l.writeDone

		l.state.Store(int32(LinkDown))
		l.notifyStateChange(LinkClosing, LinkDown)
	})

	return closeErr
}

// readLoop reads packets from the port.
func (l *Link) readLoop() {
	defer close(l.readDone)

	for {
		select {
		case <-l.closeCh:
			return
		default:
		}

		pkt, err := l.reader.ReadPacket()
		if err != nil {
			if l.State() == LinkClosing {
				return // Expected during close
			}
			l.notifyError(fmt.Errorf("read error: %w", err))
			go l.Close()
			return
		}

		if l.handler != nil {
			l.handler.OnPacket(pkt)
		}
	}
}

// writeLoop drains the transmit queue to the port.
func (l *Link) writeLoop() {
	defer close(l.writeDone)

	for {
		select {
		case <-l.closeCh:
			return
		case p := <-l.txCh:
			if err := l.writer.WritePacket(p); err != nil {
				if l.State() == LinkClosing {
					return
				}
				l.notifyError(fmt.Errorf("write error: %w", err))
				go l.Close()
				return
			}
		}
	}
}

// notifyStateChange notifies the handler of state changes.
func (l *Link) notifyStateChange(oldState, newState LinkState) {
	if l.handler != nil {
		l.handler.OnStateChange(oldState, newState)
	}
}

// notifyError notifies the handler of an error.
func (l *Link) notifyError(err error) {
	if l.handler != nil {
		l.handler.OnError(err)
	}
}
