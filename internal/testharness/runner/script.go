package runner

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var (
	// errLineTimeout reports that no line arrived within the window.
	errLineTimeout = errors.New("timed out waiting for a line")

	// errScriptClosed reports a scripted connection that ended.
	errScriptClosed = errors.New("session connection closed")
)

// script is one scripted client session over a real TCP connection. A
// reader goroutine feeds received lines into a channel so steps can
// wait with a deadline.
type script struct {
	conn  net.Conn
	lines chan string

	closeOnce sync.Once
}

func dialScript(addr string) (*script, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &script{
		conn:  conn,
		lines: make(chan string, 64),
	}
	go s.readLoop()
	return s, nil
}

func (s *script) readLoop() {
	defer close(s.lines)
	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
}

// send writes one command line.
func (s *script) send(line string) error {
	_, err := fmt.Fprintf(s.conn, "%s\n", line)
	return err
}

// next returns the next received line, waiting up to the timeout.
// errLineTimeout reports a quiet connection, errScriptClosed a dead
// one.
func (s *script) next(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line, ok := <-s.lines:
		if !ok {
			return "", errScriptClosed
		}
		return line, nil
	case <-timer.C:
		return "", errLineTimeout
	}
}

func (s *script) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}
