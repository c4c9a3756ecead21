package pending

import (
	"sync"
	"time"

	"github.com/perilink/perilink-go/pkg/wire"
)

// DefaultTimeout is how long the supervisor waits for a reply before
// declaring the acknowledgment dropped.
const DefaultTimeout = 100 * time.Millisecond

// Expectation is one outstanding request awaiting its reply.
type Expectation struct {
	// Seq orders expectations; local bookkeeping only, never
	// transmitted.
	Seq uint64

	// Core is the peripheral instance the request went to.
	Core uint8

	// Shape is the reply shape that resolves this expectation.
	Shape wire.Shape

	// SlotID and Resource identify who issued the request.
	SlotID   int
	Resource string

	// Session is the UI session awaiting the outcome, empty when no
	// session reply is owed (broadcast-independent writes).
	Session string

	// SentAt is when the request was handed to the transport.
	SentAt time.Time

	timer *time.Timer
}

// Supervisor tracks outstanding requests and their watchdog timers.
// Safe for concurrent use; timeout callbacks run outside the lock.
type Supervisor struct {
	mu      sync.Mutex
	timeout time.Duration
	nextSeq uint64

	// Outstanding expectations per core, oldest first.
	outstanding map[uint8][]*Expectation

	onTimeout func(ex *Expectation)
}

// NewSupervisor creates a supervisor. A zero timeout selects
// DefaultTimeout.
func NewSupervisor(timeout time.Duration) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Supervisor{
		timeout:     timeout,
		outstanding: make(map[uint8][]*Expectation),
	}
}

// OnTimeout sets the callback invoked when an expectation's watchdog
// fires. The callback runs at most once per expectation.
func (s *Supervisor) OnTimeout(fn func(ex *Expectation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTimeout = fn
}

// Arm registers an expectation for a request that was just sent and
// starts its watchdog.
func (s *Supervisor) Arm(core uint8, shape wire.Shape, slotID int, resource, session string) *Expectation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	ex := &Expectation{
		Seq:      s.nextSeq,
		Core:     core,
		Shape:    shape,
		SlotID:   slotID,
		Resource: resource,
		Session:  session,
		SentAt:   time.Now(),
	}
	ex.timer = time.AfterFunc(s.timeout, func() {
		s.expire(ex)
	})
	s.outstanding[core] = append(s.outstanding[core], ex)
	return ex
}

// Resolve matches an inbound reply to the oldest outstanding
// expectation with the same shape on the given core, cancels its
// watchdog, and removes it. The second return is true when more than
// one outstanding expectation matched, meaning the correlation was
// ambiguous and the oldest-first choice was a guess.
func (s *Supervisor) Resolve(core uint8, shape wire.Shape) (*Expectation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match *Expectation
	matches := 0
	for _, ex := range s.outstanding[core] {
		if ex.Shape == shape {
			if match == nil {
				match = ex
			}
			matches++
		}
	}
	if match == nil {
		return nil, false
	}

	match.timer.Stop()
	s.removeLocked(match)
	return match, matches > 1
}

// Cancel removes an expectation without running the timeout callback.
// Returns false if it was already resolved or expired.
func (s *Supervisor) Cancel(ex *Expectation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.presentLocked(ex) {
		return false
	}
	ex.timer.Stop()
	s.removeLocked(ex)
	return true
}

// DropSession cancels every outstanding expectation armed for the
// given session, without callbacks. A dead session's expectations must
// not linger: Resolve picks oldest-first, so a stale one would claim
// the reply to a later same-shape request. Returns the number
// cancelled.
func (s *Supervisor) DropSession(session string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for core, list := range s.outstanding {
		kept := list[:0]
		for _, ex := range list {
			if ex.Session == session {
				ex.timer.Stop()
				n++
				continue
			}
			kept = append(kept, ex)
		}
		if len(kept) == 0 {
			delete(s.outstanding, core)
		} else {
			s.outstanding[core] = kept
		}
	}
	return n
}

// CancelAll drops every outstanding expectation without callbacks.
// Used at board shutdown.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for core, list := range s.outstanding {
		for _, ex := range list {
			ex.timer.Stop()
		}
		delete(s.outstanding, core)
	}
}

// Outstanding returns the number of unresolved expectations for a core.
func (s *Supervisor) Outstanding(core uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding[core])
}

// expire handles a watchdog firing. If the expectation was resolved in
// the meantime nothing happens; otherwise it is removed and the
// timeout callback runs once, outside the lock.
func (s *Supervisor) expire(ex *Expectation) {
	s.mu.Lock()
	if !s.presentLocked(ex) {
		s.mu.Unlock()
		return
	}
	s.removeLocked(ex)
	callback := s.onTimeout
	s.mu.Unlock()

	if callback != nil {
		callback(ex)
	}
}

func (s *Supervisor) presentLocked(ex *Expectation) bool {
	for _, have := range s.outstanding[ex.Core] {
		if have == ex {
			return true
		}
	}
	return false
}

func (s *Supervisor) removeLocked(ex *Expectation) {
	list := s.outstanding[ex.Core]
	for i, have := range list {
		if have == ex {
			s.outstanding[ex.Core] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.outstanding[ex.Core]) == 0 {
		delete(s.outstanding, ex.Core)
	}
}
