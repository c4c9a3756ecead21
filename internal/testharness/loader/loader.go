package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/perilink/perilink-go/pkg/wire"
)

// ParseScenario parses and validates one scenario from YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}

	if sc.ID == "" {
		return nil, &LoadError{Message: "scenario ID is required"}
	}
	if len(sc.Steps) == 0 {
		return nil, &LoadError{Message: "scenario must have at least one step"}
	}
	if sc.AckTimeout != "" {
		if _, err := time.ParseDuration(sc.AckTimeout); err != nil {
			return nil, &LoadError{Message: "invalid ack_timeout", Cause: err}
		}
	}

	if err := validateBoard(&sc.Board); err != nil {
		return nil, err
	}
	for i := range sc.Steps {
		if err := validateStep(&sc.Steps[i]); err != nil {
			if le, ok := err.(*LoadError); ok {
				le.Step = i + 1
				return nil, le
			}
			return nil, &LoadError{Step: i + 1, Message: err.Error()}
		}
	}

	return &sc, nil
}

// LoadScenario loads a scenario from a file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	sc, err := ParseScenario(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	return sc, nil
}

// LoadDirectory loads every scenario in a directory, in name order.
// Only files with .yaml or .yml extensions are loaded.
func LoadDirectory(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		sc, err := LoadScenario(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}

	return scenarios, nil
}

// LoadDirectoryRecursive loads every scenario under a directory tree.
func LoadDirectoryRecursive(dir string) ([]*Scenario, error) {
	var scenarios []*Scenario

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		sc, err := LoadScenario(path)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, sc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return scenarios, nil
}

func validateBoard(b *Board) error {
	for i := range b.Drivers {
		dl := &b.Drivers[i]
		if dl.Name == "" {
			return &LoadError{Message: fmt.Sprintf("board driver %d: name is required", i+1)}
		}
		if dl.Core < -1 || dl.Core >= wire.MaxCores {
			return &LoadError{Message: fmt.Sprintf("board driver %d: core %d out of range", i+1, dl.Core)}
		}
	}
	for i := range b.Registers {
		rp := &b.Registers[i]
		if rp.Core < 0 || rp.Core >= wire.MaxCores {
			return &LoadError{Message: fmt.Sprintf("board register preset %d: core %d out of range", i+1, rp.Core)}
		}
		if rp.Register < 0 || rp.Register > 0xFF {
			return &LoadError{Message: fmt.Sprintf("board register preset %d: register %d out of range", i+1, rp.Register)}
		}
		data, err := rp.DataBytes()
		if err != nil {
			return &LoadError{Message: fmt.Sprintf("board register preset %d: bad data", i+1), Cause: err}
		}
		if len(data) == 0 {
			return &LoadError{Message: fmt.Sprintf("board register preset %d: data is required", i+1)}
		}
	}
	return nil
}

// validateStep checks the field combination for one step. The caller
// fills in the step index.
func validateStep(s *Step) error {
	switch s.Action {
	case ActionCommand, ActionExpect:
		if s.Line == "" {
			return &LoadError{Message: s.Action + " requires a line"}
		}

	case ActionExpectNone, ActionExpectNoPacket:
		// Only the optional window applies, checked below.

	case ActionExpectPacket:
		if s.Op != "read" && s.Op != "write" {
			return &LoadError{Message: fmt.Sprintf("expect_packet op must be read or write, got %q", s.Op)}
		}
		if err := validCoreRegister(s.Core, s.Register); err != nil {
			return err
		}
		data, err := s.DataBytes()
		if err != nil {
			return &LoadError{Message: "bad data", Cause: err}
		}
		if s.Op == "read" {
			if len(data) > 0 {
				return &LoadError{Message: "expect_packet read takes no data"}
			}
			if s.Count < 0 || s.Count > wire.MaxData {
				return &LoadError{Message: fmt.Sprintf("count %d out of range", s.Count)}
			}
		} else {
			if s.Count != 0 {
				return &LoadError{Message: "expect_packet write takes its count from data"}
			}
			if len(data) > wire.MaxData {
				return &LoadError{Message: fmt.Sprintf("data is %d bytes, limit %d", len(data), wire.MaxData)}
			}
		}

	case ActionInject:
		if err := validCoreRegister(s.Core, s.Register); err != nil {
			return err
		}
		data, err := s.DataBytes()
		if err != nil {
			return &LoadError{Message: "bad data", Cause: err}
		}
		if len(data) == 0 || len(data) > wire.MaxData {
			return &LoadError{Message: fmt.Sprintf("inject needs 1 to %d data bytes", wire.MaxData)}
		}

	case ActionPoke:
		if err := validCoreRegister(s.Core, s.Register); err != nil {
			return err
		}
		data, err := s.DataBytes()
		if err != nil {
			return &LoadError{Message: "bad data", Cause: err}
		}
		if len(data) == 0 {
			return &LoadError{Message: "poke requires data"}
		}

	case ActionDropAcks, ActionDropReads:
		if s.N < 0 {
			return &LoadError{Message: fmt.Sprintf("n must not be negative, got %d", s.N)}
		}

	case ActionDisconnect:
		// Only the session name applies, and it may be empty.

	case ActionWait:
		if s.Duration == "" {
			return &LoadError{Message: "wait requires a duration"}
		}

	default:
		return &LoadError{Message: fmt.Sprintf("unknown action %q", s.Action)}
	}

	if s.Duration != "" {
		if _, err := time.ParseDuration(s.Duration); err != nil {
			return &LoadError{Message: "invalid duration", Cause: err}
		}
	}
	return nil
}

func validCoreRegister(core, register int) error {
	if core < 0 || core >= wire.MaxCores {
		return &LoadError{Message: fmt.Sprintf("core %d out of range", core)}
	}
	if register < 0 || register > 0xFF {
		return &LoadError{Message: fmt.Sprintf("register %d out of range", register)}
	}
	return nil
}
