package session

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/model"
)

// call records one commander invocation.
type call struct {
	op       string
	session  string
	slotRef  string
	resource string
	value    string
	core     int
}

// fakeCommander records calls; replies come from the test through the
// server's Deliver and Complete, the way the engine answers.
type fakeCommander struct {
	mu    sync.Mutex
	calls []call
	ch    chan call
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{ch: make(chan call, 16)}
}

func (f *fakeCommander) record(c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	select {
	case f.ch <- c:
	default:
	}
	return nil
}

func (f *fakeCommander) Get(sessionID, slotRef, resource, args string) error {
	return f.record(call{op: "get", session: sessionID, slotRef: slotRef, resource: resource, value: args})
}

func (f *fakeCommander) Set(sessionID, slotRef, resource, value string) error {
	return f.record(call{op: "set", session: sessionID, slotRef: slotRef, resource: resource, value: value})
}

func (f *fakeCommander) Cat(sessionID, slotRef, resource string) error {
	return f.record(call{op: "cat", session: sessionID, slotRef: slotRef, resource: resource})
}

func (f *fakeCommander) List(sessionID, slotRef string) error {
	return f.record(call{op: "list", session: sessionID, slotRef: slotRef})
}

func (f *fakeCommander) Load(sessionID, driver string, core int) error {
	return f.record(call{op: "load", session: sessionID, value: driver, core: core})
}

func (f *fakeCommander) DropSession(sessionID string) error {
	return f.record(call{op: "drop", session: sessionID})
}

func (f *fakeCommander) wait(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a commander call")
		return call{}
	}
}

func newTestServer(t *testing.T, opts ...func(*Config)) (*Server, *fakeCommander) {
	t.Helper()
	cmdr := newFakeCommander()
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := NewServer(cfg, cmdr)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, cmdr
}

func dialSession(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerLifecycle(t *testing.T) {
	cmdr := newFakeCommander()
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	srv, err := NewServer(cfg, cmdr)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	if err := srv.Stop(); err != ErrNotStarted {
		t.Errorf("Stop before Start: got %v, want %v", err, ErrNotStarted)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := srv.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start: got %v, want %v", err, ErrAlreadyStarted)
	}
	if srv.Addr() == nil {
		t.Error("Addr is nil while started")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if srv.Addr() != nil {
		t.Error("Addr is set after Stop")
	}
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	cmdr := newFakeCommander()

	bad := DefaultConfig()
	bad.ListenAddress = ""
	if _, err := NewServer(bad, cmdr); err == nil {
		t.Error("empty listen address accepted")
	}
	if _, err := NewServer(DefaultConfig(), nil); err == nil {
		t.Error("nil commander accepted")
	}
}

func TestCommandsReachCommander(t *testing.T) {
	srv, cmdr := newTestServer(t)
	conn, _ := dialSession(t, srv)

	fmt.Fprint(conn, "pcget buttons\r\n")
	got := cmdr.wait(t)
	if got.op != "get" || got.resource != "buttons" || got.slotRef != "" {
		t.Errorf("call = %+v, want bare get of buttons", got)
	}
	if got.session == "" {
		t.Error("commander saw an empty session id")
	}

	fmt.Fprint(conn, "pcset 0 rgb 5\n")
	if got := cmdr.wait(t); got.op != "set" || got.slotRef != "0" || got.resource != "rgb" || got.value != "5" {
		t.Errorf("call = %+v, want set 0 rgb 5", got)
	}

	fmt.Fprint(conn, "pcset 1 char hello world\n")
	if got := cmdr.wait(t); got.op != "set" || got.value != "hello world" {
		t.Errorf("call = %+v, want the value %q", got, "hello world")
	}

	fmt.Fprint(conn, "pccat buttons\n")
	if got := cmdr.wait(t); got.op != "cat" || got.resource != "buttons" {
		t.Errorf("call = %+v, want cat of buttons", got)
	}

	fmt.Fprint(conn, "pclist\n")
	if got := cmdr.wait(t); got.op != "list" || got.slotRef != "" {
		t.Errorf("call = %+v, want list of all slots", got)
	}

	fmt.Fprint(conn, "pcload sndgen\n")
	if got := cmdr.wait(t); got.op != "load" || got.value != "sndgen" || got.core != -1 {
		t.Errorf("call = %+v, want load sndgen on the lowest free core", got)
	}
}

func TestDeliveryAndPrompt(t *testing.T) {
	srv, cmdr := newTestServer(t)
	conn, r := dialSession(t, srv)

	fmt.Fprint(conn, "pcget buttons\n")
	id := cmdr.wait(t).session

	if err := srv.Deliver(id, "2\n"); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	srv.Complete(id)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if line != "2\n" {
		t.Errorf("reply = %q, want %q", line, "2\n")
	}

	// Turning the prompt on acts as a completed command and draws the
	// first prompt.
	fmt.Fprint(conn, "prompt on\n")
	buf := make([]byte, len(model.Prompt))
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if string(buf) != model.Prompt {
		t.Errorf("prompt = %q, want %q", buf, model.Prompt)
	}

	// With the prompt on, completion follows the reply.
	fmt.Fprint(conn, "pcget buttons\n")
	if got := cmdr.wait(t).session; got != id {
		t.Errorf("session id changed across commands: %q then %q", id, got)
	}
	if err := srv.Deliver(id, "4\n"); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	srv.Complete(id)
	if line, err := r.ReadString('\n'); err != nil || line != "4\n" {
		t.Fatalf("reply = %q (%v), want %q", line, err, "4\n")
	}
	if _, err := io.ReadFull(r, buf); err != nil || string(buf) != model.Prompt {
		t.Errorf("prompt after reply = %q (%v), want %q", buf, err, model.Prompt)
	}
}

func TestBadCommandAnswersError(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, r := dialSession(t, srv)

	fmt.Fprint(conn, "fetch the data\n")
	want := fmt.Sprintf(model.ErrFmtBadCommand, "fetch the data")
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read error line: %v", err)
	}
	if line != want {
		t.Errorf("line = %q, want %q", line, want)
	}

	// A known verb with a broken argument list gets the same answer.
	fmt.Fprint(conn, "pcload\n")
	want = fmt.Sprintf(model.ErrFmtBadCommand, "pcload")
	if line, _ := r.ReadString('\n'); line != want {
		t.Errorf("line = %q, want %q", line, want)
	}

	// Oversized lines are rejected with a capped echo.
	fmt.Fprint(conn, strings.Repeat("x", MaxCommandLen+10)+"\n")
	line, err = r.ReadString('\n')
	if err != nil {
		t.Fatalf("read error line: %v", err)
	}
	if !strings.HasPrefix(line, "ERROR 001") || !strings.Contains(line, "...") {
		t.Errorf("oversized line answer = %q", line)
	}
	if len(line) > maxErrorEcho+64 {
		t.Errorf("error line is %d bytes, want the echo capped", len(line))
	}
}

func TestDisconnectDropsSession(t *testing.T) {
	srv, cmdr := newTestServer(t)
	conn, _ := dialSession(t, srv)

	fmt.Fprint(conn, "pccat buttons\n")
	id := cmdr.wait(t).session
	if got := srv.SessionCount(); got != 1 {
		t.Fatalf("SessionCount = %d, want 1", got)
	}

	_ = conn.Close()
	got := cmdr.wait(t)
	if got.op != "drop" || got.session != id {
		t.Errorf("call after close = %+v, want drop of %s", got, id)
	}
	waitFor(t, "session removal", func() bool { return srv.SessionCount() == 0 })
	if err := srv.Deliver(id, "1\n"); err != ErrNoSession {
		t.Errorf("Deliver after close: got %v, want %v", err, ErrNoSession)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	srv, cmdr := newTestServer(t)
	connA, rA := dialSession(t, srv)
	connB, rB := dialSession(t, srv)

	fmt.Fprint(connA, "pcget buttons\n")
	idA := cmdr.wait(t).session
	fmt.Fprint(connB, "pcget buttons\n")
	idB := cmdr.wait(t).session
	if idA == idB {
		t.Fatal("two connections share a session id")
	}

	if err := srv.Deliver(idB, "7\n"); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if line, err := rB.ReadString('\n'); err != nil || line != "7\n" {
		t.Errorf("session B read %q (%v), want %q", line, err, "7\n")
	}

	// A's connection stays silent.
	_ = connA.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if line, err := rA.ReadString('\n'); err == nil {
		t.Errorf("session A received %q meant for session B", line)
	}
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	cmdr := newFakeCommander()
	cfg := DefaultConfig()
	cfg.WriteQueueSize = 2
	srv, err := NewServer(cfg, cmdr)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// No write loop: the queue only fills.
	sess := newSession("s1", server, srv)
	if err := sess.enqueue("1\n"); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := sess.enqueue("2\n"); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if err := sess.enqueue("3\n"); err != ErrSessionBusy {
		t.Errorf("third enqueue: got %v, want %v", err, ErrSessionBusy)
	}
}

// eventRecorder collects capture events.
type eventRecorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *eventRecorder) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]log.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) find(cond func(log.Event) bool) *log.Event {
	for _, ev := range r.snapshot() {
		if cond(ev) {
			return &ev
		}
	}
	return nil
}

func TestSessionCapture(t *testing.T) {
	rec := &eventRecorder{}
	srv, cmdr := newTestServer(t, func(c *Config) {
		c.BoardID = "bench0"
		c.ProtocolLogger = rec
	})
	conn, r := dialSession(t, srv)

	fmt.Fprint(conn, "pcget buttons\n")
	id := cmdr.wait(t).session
	if err := srv.Deliver(id, "2\n"); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if line, err := r.ReadString('\n'); err != nil || line != "2\n" {
		t.Fatalf("reply = %q (%v)", line, err)
	}

	waitFor(t, "capture events", func() bool {
		return rec.find(func(ev log.Event) bool {
			return ev.Direction == log.DirectionOut && ev.Command != nil
		}) != nil
	})

	connected := rec.find(func(ev log.Event) bool {
		return ev.StateChange != nil && ev.StateChange.NewState == "connected"
	})
	if connected == nil {
		t.Fatal("no connect event captured")
	}
	if connected.BoardID != "bench0" || connected.SessionID != id {
		t.Errorf("connect event = %+v, want board bench0 session %s", connected, id)
	}

	in := rec.find(func(ev log.Event) bool {
		return ev.Direction == log.DirectionIn && ev.Command != nil
	})
	if in == nil {
		t.Fatal("no inbound command captured")
	}
	if in.Command.Line != "pcget buttons" || in.Command.Verb != "pcget" {
		t.Errorf("inbound command = %+v, want pcget buttons", in.Command)
	}
	if in.Layer != log.LayerSession || in.Category != log.CategoryCommand {
		t.Errorf("inbound layer/category = %v/%v", in.Layer, in.Category)
	}

	out := rec.find(func(ev log.Event) bool {
		return ev.Direction == log.DirectionOut && ev.Command != nil
	})
	if out.Command.Line != "2" || out.Command.Verb != "" {
		t.Errorf("outbound line = %+v, want the bare reply", out.Command)
	}
}
