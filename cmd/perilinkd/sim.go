package main

import (
	"context"
	"encoding/binary"
	"log"
	"time"

	"github.com/perilink/perilink-go/pkg/sim"
)

// simBoard is the simulated board under -sim, nil otherwise.
var simBoard *sim.Board

// newSimBoard builds a board persona: a Cmod S7 board driver on core 0
// and a RunBer on core 1, so auto-load has something to find.
func newSimBoard() *sim.Board {
	b := sim.NewBoard(sim.Handlers{})

	// Enumerator ROM: one 16 bit driver ID per core, big endian,
	// zero for empty cores.
	rom := make([]byte, 32)
	binary.BigEndian.PutUint16(rom[0:], 0x0001) // cmods7
	binary.BigEndian.PutUint16(rom[2:], 0x0002) // runber
	b.Poke(0, 0x40, rom)

	return b
}

// runSimulation feeds the board synthetic activity: button presses on
// the Cmod S7 and switch changes on the RunBer, delivered the way the
// monitor cores would report them.
func runSimulation(ctx context.Context, board *sim.Board) {
	log.Println("Simulation mode enabled")

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	var step int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step++

			// Walk the two buttons through their four states.
			buttons := byte(step % 4)
			board.Poke(0, 0, []byte{buttons})
			if err := board.Inject(0, 0, []byte{buttons}); err != nil {
				return
			}
			log.Printf("[SIM] Buttons now %x", buttons)

			// March a bit across the eight switches.
			switches := []byte{byte(1 << (step % 8)), byte(step % 4)}
			board.Poke(1, 0, switches)
			if err := board.Inject(1, 0, switches); err != nil {
				return
			}
			log.Printf("[SIM] Switches now %02x %02x", switches[0], switches[1])
		}
	}
}
