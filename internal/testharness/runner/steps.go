package runner

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/perilink/perilink-go/internal/testharness/loader"
	"github.com/perilink/perilink-go/pkg/wire"
)

// runStep executes one scenario step. The loader validated field
// combinations, so decoding here only fails on runner bugs.
func (r *Runner) runStep(step *loader.Step) error {
	switch step.Action {
	case loader.ActionCommand:
		sc, err := r.session(step.Session)
		if err != nil {
			return err
		}
		return sc.send(step.Line)

	case loader.ActionExpect:
		sc, err := r.session(step.Session)
		if err != nil {
			return err
		}
		line, err := sc.next(r.window(step, expectTimeout))
		if err != nil {
			return err
		}
		if line != step.Line {
			return fmt.Errorf("got line %q, want %q", line, step.Line)
		}
		return nil

	case loader.ActionExpectNone:
		sc, err := r.session(step.Session)
		if err != nil {
			return err
		}
		line, err := sc.next(r.window(step, quietWindow))
		if errors.Is(err, errLineTimeout) {
			return nil
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("got unexpected line %q", line)

	case loader.ActionExpectPacket:
		return r.expectPacket(step)

	case loader.ActionExpectNoPacket:
		if p, ok := r.board.TakeRequest(r.window(step, quietWindow)); ok {
			return fmt.Errorf("got unexpected %s request for core %d register 0x%02x",
				p.Op, p.Core, p.Register)
		}
		return nil

	case loader.ActionInject:
		data, err := step.DataBytes()
		if err != nil {
			return err
		}
		return r.board.Inject(uint8(step.Core), uint8(step.Register), data)

	case loader.ActionPoke:
		data, err := step.DataBytes()
		if err != nil {
			return err
		}
		r.board.Poke(uint8(step.Core), uint8(step.Register), data)
		return nil

	case loader.ActionDropAcks:
		r.board.DropAcks(dropCount(step.N))
		return nil

	case loader.ActionDropReads:
		r.board.DropReads(dropCount(step.N))
		return nil

	case loader.ActionDisconnect:
		name := step.Session
		if name == "" {
			name = "s1"
		}
		if sc, ok := r.scripts[name]; ok {
			sc.close()
			delete(r.scripts, name)
		}
		return nil

	case loader.ActionWait:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		time.Sleep(d)
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

// expectPacket takes the next host request off the board and matches
// it against the step.
func (r *Runner) expectPacket(step *loader.Step) error {
	p, ok := r.board.TakeRequest(r.window(step, expectTimeout))
	if !ok {
		return errors.New("no host request arrived")
	}

	wantOp := wire.OpRead
	if step.Op == "write" {
		wantOp = wire.OpWrite
	}
	if p.Op != wantOp {
		return fmt.Errorf("request op = %s, want %s", p.Op, wantOp)
	}
	if int(p.Core) != step.Core {
		return fmt.Errorf("request core = %d, want %d", p.Core, step.Core)
	}
	if int(p.Register) != step.Register {
		return fmt.Errorf("request register = 0x%02x, want 0x%02x", p.Register, step.Register)
	}
	if step.Op == "read" && step.Count > 0 && int(p.Count) != step.Count {
		return fmt.Errorf("request count = %d, want %d", p.Count, step.Count)
	}
	if step.Data != "" {
		want, err := step.DataBytes()
		if err != nil {
			return err
		}
		if !bytes.Equal(p.Data, want) {
			return fmt.Errorf("request data = % x, want % x", p.Data, want)
		}
	}
	return nil
}

// dropCount maps the step's N onto the drop knobs, where omitted means
// one.
func dropCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
