package session

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/model"
)

// maxErrorEcho bounds how much of a rejected line is echoed back in
// the parse error.
const maxErrorEcho = 256

// session is one connected client: a reader parsing command lines and
// a writer draining the outbound queue. The two goroutines share
// nothing but the queue and the closed channel.
type session struct {
	id     string
	server *Server
	conn   net.Conn

	outbox chan string

	closeOnce sync.Once
	closed    chan struct{}

	showPrompt atomic.Bool
}

func newSession(id string, conn net.Conn, server *Server) *session {
	return &session{
		id:     id,
		server: server,
		conn:   conn,
		outbox: make(chan string, server.config.WriteQueueSize),
		closed: make(chan struct{}),
	}
}

// readLoop parses client lines until the connection ends.
func (s *session) readLoop() {
	defer s.server.wg.Done()
	defer s.close("connection closed")

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		s.dispatch(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		s.server.debugLog("session read ended", "session", s.id, "error", err)
	}
}

// writeLoop drains the outbound queue onto the connection.
func (s *session) writeLoop() {
	defer s.server.wg.Done()
	for {
		select {
		case line := <-s.outbox:
			if err := s.write(line); err != nil {
				s.server.debugLog("session write failed", "session", s.id, "error", err)
				s.close("write failed")
				return
			}
			s.server.captureLine(s.id, log.DirectionOut, line, "")
		case <-s.closed:
			return
		}
	}
}

func (s *session) write(line string) error {
	if t := s.server.config.WriteTimeout; t > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(s.conn, line)
	return err
}

// dispatch handles one client line.
func (s *session) dispatch(line string) {
	if strings.TrimSpace(line) == "" {
		// A bare return just draws the next prompt.
		s.complete()
		return
	}
	if len(line) > MaxCommandLen {
		s.reject(line)
		return
	}
	cmd, ok := parseLine(line)
	if !ok {
		s.reject(line)
		return
	}
	s.server.captureLine(s.id, log.DirectionIn, line, cmd.verb.name())

	c := s.server.commander
	var err error
	switch cmd.verb {
	case verbGet:
		err = c.Get(s.id, cmd.slotRef, cmd.resource, cmd.value)
	case verbSet:
		err = c.Set(s.id, cmd.slotRef, cmd.resource, cmd.value)
	case verbCat:
		err = c.Cat(s.id, cmd.slotRef, cmd.resource)
	case verbList:
		err = c.List(s.id, cmd.slotRef)
	case verbLoad:
		err = c.Load(s.id, cmd.driver, cmd.core)
	case verbPrompt:
		s.showPrompt.Store(cmd.enable)
		s.complete()
	}
	if err != nil {
		// The board engine is gone; the daemon is shutting down.
		s.server.debugLog("command submit failed", "session", s.id, "error", err)
		s.close("engine unavailable")
	}
}

// reject answers a line that does not form a command.
func (s *session) reject(line string) {
	if len(line) > maxErrorEcho {
		line = line[:maxErrorEcho] + "..."
	}
	s.server.captureLine(s.id, log.DirectionIn, line, "")
	_ = s.enqueue(fmt.Sprintf(model.ErrFmtBadCommand, line))
	s.complete()
}

// complete marks the previous command finished, which for sessions
// that asked for one means drawing the prompt.
func (s *session) complete() {
	if s.showPrompt.Load() {
		_ = s.enqueue(model.Prompt)
	}
}

// enqueue queues one outbound line without blocking. ErrSessionBusy
// reports a full queue; the line is dropped.
func (s *session) enqueue(line string) error {
	select {
	case <-s.closed:
		return ErrNoSession
	default:
	}
	select {
	case s.outbox <- line:
		return nil
	default:
		return ErrSessionBusy
	}
}

// close tears the session down once and releases its board state.
func (s *session) close(reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		s.server.removeSession(s.id, reason)
	})
}
