// Package loader reads YAML link scenarios for the integration
// harness.
package loader

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// Scenario is one scripted run against a simulated board: the board's
// boot state plus the steps to execute in order.
type Scenario struct {
	// ID is the scenario identifier (e.g. "SC-GET-001").
	ID string `yaml:"id"`

	// Name is a short human-readable title.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty"`

	// AckTimeout overrides the acknowledgment watchdog, as a duration
	// string. Timeout scenarios shorten it so a run does not sit
	// through the production default.
	AckTimeout string `yaml:"ack_timeout,omitempty"`

	// Board describes the simulated board the scenario runs against.
	Board Board `yaml:"board"`

	// Steps run in order. The first failing step fails the scenario.
	Steps []Step `yaml:"steps"`
}

// Board is the simulated board's boot state.
type Board struct {
	// ID names the board in logs. Empty defaults to "simboard".
	ID string `yaml:"id,omitempty"`

	// Drivers are loaded in order before the first step runs.
	Drivers []DriverLoad `yaml:"drivers,omitempty"`

	// Registers seed the register file before the daemon connects.
	Registers []RegisterPreset `yaml:"registers,omitempty"`
}

// DriverLoad is one boot-time driver installation.
type DriverLoad struct {
	// Name is the driver's pcload name.
	Name string `yaml:"name"`

	// Core is the peripheral core to bind. Omitted means core 0; -1
	// picks the lowest free core.
	Core int `yaml:"core,omitempty"`
}

// RegisterPreset seeds a run of registers on one core.
type RegisterPreset struct {
	Core     int `yaml:"core"`
	Register int `yaml:"register"`

	// Data is hex bytes, e.g. "02" or "de ad be ef".
	Data string `yaml:"data"`
}

// Step actions. Session steps talk to the daemon over a real loopback
// connection; packet and board steps act on the simulated link.
const (
	// ActionCommand sends Line on a session.
	ActionCommand = "command"

	// ActionExpect waits for the session's next reply line and
	// compares it to Line.
	ActionExpect = "expect"

	// ActionExpectNone asserts no reply line arrives within Duration.
	ActionExpectNone = "expect_none"

	// ActionExpectPacket takes the next host request off the board and
	// matches it against Op, Core, Register, Count, and Data.
	ActionExpectPacket = "expect_packet"

	// ActionExpectNoPacket asserts no host request within Duration.
	ActionExpectNoPacket = "expect_no_packet"

	// ActionInject queues an autosend update from the board.
	ActionInject = "inject"

	// ActionPoke writes board registers directly, bypassing the link.
	ActionPoke = "poke"

	// ActionDropAcks swallows the next N write acknowledgments.
	ActionDropAcks = "drop_acks"

	// ActionDropReads swallows the next N read replies.
	ActionDropReads = "drop_reads"

	// ActionDisconnect closes a session's connection.
	ActionDisconnect = "disconnect"

	// ActionWait sleeps for Duration.
	ActionWait = "wait"
)

// Step is one scenario action. Which fields apply depends on Action;
// the loader validates the combination.
type Step struct {
	// Action selects the step type. See the Action constants.
	Action string `yaml:"action"`

	// Session names the client session for the session steps. Empty
	// means "s1". Sessions connect on first use.
	Session string `yaml:"session,omitempty"`

	// Line is the command to send or the reply line to expect.
	Line string `yaml:"line,omitempty"`

	// Op is the expected request operation, "read" or "write".
	Op string `yaml:"op,omitempty"`

	// Core and Register locate a packet or a register run.
	Core     int `yaml:"core,omitempty"`
	Register int `yaml:"register,omitempty"`

	// Count is the expected read length. Zero matches any.
	Count int `yaml:"count,omitempty"`

	// Data is hex bytes: the payload to inject or poke, or the exact
	// payload an expected write must carry.
	Data string `yaml:"data,omitempty"`

	// N is how many replies the drop steps swallow. Zero means one.
	N int `yaml:"n,omitempty"`

	// Duration is a wait length or an expectation window, as a
	// duration string.
	Duration string `yaml:"duration,omitempty"`
}

// DataBytes decodes the step's hex payload.
func (s *Step) DataBytes() ([]byte, error) {
	return parseHex(s.Data)
}

// DataBytes decodes the preset's hex payload.
func (r *RegisterPreset) DataBytes() ([]byte, error) {
	return parseHex(r.Data)
}

// parseHex decodes hex byte text. Whitespace between bytes is
// accepted, so "de ad" and "dead" read the same.
func parseHex(s string) ([]byte, error) {
	compact := strings.Join(strings.Fields(s), "")
	if compact == "" {
		return nil, nil
	}
	return hex.DecodeString(compact)
}

// LoadError reports a scenario that could not be loaded.
type LoadError struct {
	// File is the path that failed, when known.
	File string

	// Step is the 1-based index of the offending step, 0 when the
	// error is not tied to one.
	Step int

	// Message describes the problem.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Step > 0 {
		msg = "step " + strconv.Itoa(e.Step) + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
