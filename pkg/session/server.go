package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perilink/perilink-go/pkg/log"
)

// Session server errors.
var (
	ErrInvalidConfig  = errors.New("invalid session config")
	ErrAlreadyStarted = errors.New("session server already started")
	ErrNotStarted     = errors.New("session server not started")
	ErrNoSession      = errors.New("no such session")
	ErrSessionBusy    = errors.New("session outbound queue full")
)

// DefaultListenAddress is the TCP address the daemon serves clients on.
const DefaultListenAddress = ":8870"

// DefaultWriteQueueSize bounds each session's outbound line queue.
const DefaultWriteQueueSize = 64

// Commander is the command surface sessions drive. The board engine
// implements it. Replies come back asynchronously through Deliver and
// Complete, keyed by session ID.
type Commander interface {
	// Get reads a resource. Args carries transaction arguments and is
	// empty otherwise.
	Get(sessionID, slotRef, resource, args string) error

	// Set writes a value to a resource.
	Set(sessionID, slotRef, resource, value string) error

	// Cat subscribes the session to a resource's broadcast updates.
	Cat(sessionID, slotRef, resource string) error

	// List writes the slot listing, or one slot's resources, to the
	// session. An empty slotRef lists every slot.
	List(sessionID, slotRef string) error

	// Load installs a driver. Core -1 selects the lowest free core.
	Load(sessionID, driver string, core int) error

	// DropSession releases everything the session holds.
	DropSession(sessionID string) error
}

// Config holds session server settings.
type Config struct {
	// BoardID tags capture events with the board this server fronts.
	BoardID string

	// ListenAddress is the TCP address to serve on.
	ListenAddress string

	// WriteQueueSize bounds each session's outbound line queue. A
	// session that stops draining its connection loses lines past
	// this depth. 0 selects the default.
	WriteQueueSize int

	// WriteTimeout bounds one line write to a client. A session that
	// blocks longer is closed. 0 disables the deadline.
	WriteTimeout time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures session traffic (command and reply
	// lines, connect and disconnect). If nil, capture is disabled.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddress:  DefaultListenAddress,
		WriteQueueSize: DefaultWriteQueueSize,
		WriteTimeout:   10 * time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrInvalidConfig
	}
	if c.WriteQueueSize < 0 || c.WriteTimeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Server accepts TCP connections and runs one command session per
// connection against the commander.
type Server struct {
	config    Config
	commander Commander
	logger    *slog.Logger
	protocol  log.Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*session
	closeCh  chan struct{}

	wg sync.WaitGroup
}

// NewServer creates a session server driving the given commander.
func NewServer(config Config, commander Commander) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if commander == nil {
		return nil, fmt.Errorf("%w: commander required", ErrInvalidConfig)
	}
	if config.WriteQueueSize == 0 {
		config.WriteQueueSize = DefaultWriteQueueSize
	}
	return &Server{
		config:    config,
		commander: commander,
		logger:    config.Logger,
		protocol:  config.ProtocolLogger,
		sessions:  make(map[string]*session),
	}, nil
}

// Start binds the listen address and begins accepting clients.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyStarted
	}
	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("session listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = listener
	s.closeCh = make(chan struct{})
	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.infoLog("session server listening", "address", listener.Addr())
	return nil
}

// Stop closes the listener and every open session, and waits for their
// goroutines to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	listener := s.listener
	s.listener = nil
	close(s.closeCh)
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	err := listener.Close()
	for _, sess := range open {
		sess.close("server stopped")
	}
	s.wg.Wait()

	s.infoLog("session server stopped")
	return err
}

// Addr returns the bound listen address, nil when not started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Deliver queues one line for a session without blocking. It is the
// commander's delivery callback. ErrSessionBusy means the session's
// queue is full and the line was dropped.
func (s *Server) Deliver(sessionID, line string) error {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	s.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	return sess.enqueue(line)
}

// Complete marks a session's command as finished. Sessions that asked
// for a prompt get one.
func (s *Server) Complete(sessionID string) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	s.mu.Unlock()
	if sess != nil {
		sess.complete()
	}
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.debugLog("accept failed", "error", err)
			continue
		}
		s.startSession(conn)
	}
}

func (s *Server) startSession(conn net.Conn) {
	id := uuid.NewString()
	sess := newSession(id, conn, s)

	s.mu.Lock()
	select {
	case <-s.closeCh:
		s.mu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	s.sessions[id] = sess
	s.wg.Add(2)
	s.mu.Unlock()

	s.captureSessionState(id, "", "connected", conn.RemoteAddr().String())
	s.infoLog("session connected", "session", id, "remote", conn.RemoteAddr())
	go sess.readLoop()
	go sess.writeLoop()
}

// removeSession forgets a closed session and releases what it held on
// the board.
func (s *Server) removeSession(id, reason string) {
	s.mu.Lock()
	_, known := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !known {
		return
	}

	if err := s.commander.DropSession(id); err != nil {
		s.debugLog("drop session failed", "session", id, "error", err)
	}
	s.captureSessionState(id, "connected", "closed", reason)
	s.infoLog("session closed", "session", id, "reason", reason)
}

// debugLog logs a debug message if logging is enabled.
func (s *Server) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// infoLog logs an info message if logging is enabled.
func (s *Server) infoLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

// captureLine records a command or reply line. Verb is set for parsed
// inbound lines only.
func (s *Server) captureLine(sessionID string, direction log.Direction, line, verb string) {
	if s.protocol == nil {
		return
	}
	s.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   s.config.BoardID,
		Direction: direction,
		Layer:     log.LayerSession,
		Category:  log.CategoryCommand,
		SessionID: sessionID,
		Command: &log.CommandEvent{
			Line: strings.TrimRight(line, "\n"),
			Verb: verb,
		},
	})
}

// captureSessionState records a session connect or disconnect.
func (s *Server) captureSessionState(sessionID, oldState, newState, reason string) {
	if s.protocol == nil {
		return
	}
	s.protocol.Log(log.Event{
		Timestamp: time.Now(),
		BoardID:   s.config.BoardID,
		Direction: log.DirectionIn,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		SessionID: sessionID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
