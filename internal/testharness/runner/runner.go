// Package runner executes link scenarios against a simulated board.
//
// A Runner boots the full daemon stack: a sim.Board standing in for
// the serial port, the board engine on top of it, and a session
// server on a loopback listener. Scripted sessions are real TCP
// clients, so a scenario exercises the command parser, the engine
// loop, and the packet link end to end.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/perilink/perilink-go/internal/testharness/loader"
	"github.com/perilink/perilink-go/pkg/drivers"
	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/session"
	"github.com/perilink/perilink-go/pkg/sim"
)

const (
	// defaultBoardID tags runs whose scenario names no board.
	defaultBoardID = "simboard"

	// expectTimeout bounds how long a positive expectation waits.
	expectTimeout = 2 * time.Second

	// quietWindow is the default window for negative expectations.
	quietWindow = 150 * time.Millisecond

	// settlePoll paces the wait for boot-time link traffic to stop.
	settlePoll = 20 * time.Millisecond
)

// Runner drives one scenario. Runners are single use: create one per
// scenario and call Run once.
type Runner struct {
	scenario *loader.Scenario
	logger   *slog.Logger

	board   *sim.Board
	eng     *engine.Engine
	srv     *session.Server
	addr    string
	events  chan engine.Event
	scripts map[string]*script
}

// New prepares a runner for one scenario. A nil logger disables debug
// output.
func New(sc *loader.Scenario, logger *slog.Logger) *Runner {
	return &Runner{
		scenario: sc,
		logger:   logger,
		scripts:  make(map[string]*script),
	}
}

// Run boots the stack, executes every step, and tears down. The first
// failing step aborts the run; its error names the step.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.boot(ctx); err != nil {
		r.teardown()
		return fmt.Errorf("boot: %w", err)
	}
	defer r.teardown()

	for i := range r.scenario.Steps {
		step := &r.scenario.Steps[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runStep(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}
	return nil
}

// boot builds the board, engine, and session server, then performs the
// scenario's boot loads and waits for the link to go quiet.
func (r *Runner) boot(ctx context.Context) error {
	r.board = sim.NewBoard(sim.Handlers{})
	for i := range r.scenario.Board.Registers {
		preset := &r.scenario.Board.Registers[i]
		data, err := preset.DataBytes()
		if err != nil {
			return fmt.Errorf("register preset %d: %w", i+1, err)
		}
		r.board.Poke(uint8(preset.Core), uint8(preset.Register), data)
	}

	eng, err := engine.New(engine.Config{
		BoardID:    r.boardID(),
		NewDriver:  drivers.New,
		AckTimeout: r.ackTimeout(),
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	r.eng = eng
	r.events = make(chan engine.Event, 64)
	eng.OnEvent(func(ev engine.Event) {
		select {
		case r.events <- ev:
		default:
		}
	})

	srv, err := session.NewServer(session.Config{
		BoardID:       r.boardID(),
		ListenAddress: "127.0.0.1:0",
		Logger:        r.logger,
	}, eng)
	if err != nil {
		return err
	}
	eng.OnDeliver(srv.Deliver)
	eng.OnComplete(srv.Complete)

	if err := eng.Start(r.board); err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	r.srv = srv
	r.addr = srv.Addr().String()

	for _, dl := range r.scenario.Board.Drivers {
		if err := eng.Load("", dl.Name, dl.Core); err != nil {
			return fmt.Errorf("boot load %s: %w", dl.Name, err)
		}
	}
	if err := r.awaitLoads(ctx, len(r.scenario.Board.Drivers)); err != nil {
		return err
	}
	r.settle()
	r.board.ClearRequests()
	return nil
}

// awaitLoads waits for the boot loads to report through slot events.
func (r *Runner) awaitLoads(ctx context.Context, want int) error {
	timer := time.NewTimer(expectTimeout)
	defer timer.Stop()
	for done := 0; done < want; {
		select {
		case ev := <-r.events:
			switch ev.Type {
			case engine.EventSlotLoaded:
				done++
			case engine.EventSlotFailed:
				return fmt.Errorf("load of %s failed: %v", ev.Driver, ev.Error)
			}
		case <-timer.C:
			return fmt.Errorf("boot loads timed out with %d of %d slots ready", done, want)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// settle waits for install-time link traffic to die down so the first
// step starts from a quiet board.
func (r *Runner) settle() {
	last := len(r.board.Requests())
	for i := 0; i < 50; i++ {
		time.Sleep(settlePoll)
		n := len(r.board.Requests())
		if n == last {
			return
		}
		last = n
	}
}

func (r *Runner) teardown() {
	for _, sc := range r.scripts {
		sc.close()
	}
	if r.srv != nil {
		_ = r.srv.Stop()
	}
	if r.eng != nil {
		_ = r.eng.Stop()
	}
	if r.board != nil {
		_ = r.board.Close()
	}
}

func (r *Runner) boardID() string {
	if r.scenario.Board.ID != "" {
		return r.scenario.Board.ID
	}
	return defaultBoardID
}

// ackTimeout returns the scenario's watchdog override, zero for the
// engine default. The loader validated the string.
func (r *Runner) ackTimeout() time.Duration {
	if r.scenario.AckTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(r.scenario.AckTimeout)
	if err != nil {
		return 0
	}
	return d
}

// session returns the named scripted session, dialing it on first
// use. An empty name means "s1".
func (r *Runner) session(name string) (*script, error) {
	if name == "" {
		name = "s1"
	}
	if sc, ok := r.scripts[name]; ok {
		return sc, nil
	}
	sc, err := dialScript(r.addr)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", name, err)
	}
	r.scripts[name] = sc
	return sc, nil
}

// window returns the step's expectation window, or the fallback when
// the step names none.
func (r *Runner) window(step *loader.Step, fallback time.Duration) time.Duration {
	if step.Duration == "" {
		return fallback
	}
	d, err := time.ParseDuration(step.Duration)
	if err != nil {
		return fallback
	}
	return d
}
