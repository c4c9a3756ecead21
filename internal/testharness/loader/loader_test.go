package loader_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/perilink/perilink-go/internal/testharness/loader"
)

func TestParseScenarioBasic(t *testing.T) {
	yaml := `
id: SC-TEST-001
name: Button read
description: Reads a preset register through pcget.
ack_timeout: 100ms
board:
  id: bench
  drivers:
    - name: cmods7
      core: 0
  registers:
    - core: 0
      register: 0
      data: "02"
steps:
  - action: command
    line: pcget buttons
  - action: expect_packet
    op: read
    core: 0
    register: 0
    count: 1
  - action: expect
    line: "2"
`
	sc, err := loader.ParseScenario([]byte(yaml))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}

	if sc.ID != "SC-TEST-001" {
		t.Errorf("ID = %q, want SC-TEST-001", sc.ID)
	}
	if sc.Board.ID != "bench" {
		t.Errorf("board ID = %q, want bench", sc.Board.ID)
	}
	if len(sc.Board.Drivers) != 1 || sc.Board.Drivers[0].Name != "cmods7" {
		t.Fatalf("drivers = %+v, want one cmods7 load", sc.Board.Drivers)
	}
	if len(sc.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(sc.Steps))
	}
	if sc.Steps[0].Action != loader.ActionCommand || sc.Steps[0].Line != "pcget buttons" {
		t.Errorf("step 1 = %+v, want pcget command", sc.Steps[0])
	}
	if sc.Steps[1].Op != "read" || sc.Steps[1].Count != 1 {
		t.Errorf("step 2 = %+v, want read count 1", sc.Steps[1])
	}

	data, err := sc.Board.Registers[0].DataBytes()
	if err != nil {
		t.Fatalf("preset DataBytes: %v", err)
	}
	if !bytes.Equal(data, []byte{0x02}) {
		t.Errorf("preset data = % x, want 02", data)
	}
}

func TestParseScenarioRejects(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantStep int
	}{
		{
			name: "MissingID",
			yaml: "steps:\n  - action: wait\n    duration: 1ms\n",
		},
		{
			name: "NoSteps",
			yaml: "id: SC-X\n",
		},
		{
			name: "BadAckTimeout",
			yaml: "id: SC-X\nack_timeout: fast\nsteps:\n  - action: wait\n    duration: 1ms\n",
		},
		{
			name:     "UnknownAction",
			yaml:     "id: SC-X\nsteps:\n  - action: explode\n",
			wantStep: 1,
		},
		{
			name:     "CommandWithoutLine",
			yaml:     "id: SC-X\nsteps:\n  - action: command\n",
			wantStep: 1,
		},
		{
			name:     "InjectWithoutData",
			yaml:     "id: SC-X\nsteps:\n  - action: inject\n    core: 0\n    register: 0\n",
			wantStep: 1,
		},
		{
			name:     "BadHexData",
			yaml:     "id: SC-X\nsteps:\n  - action: poke\n    core: 0\n    register: 0\n    data: zz\n",
			wantStep: 1,
		},
		{
			name:     "CoreOutOfRange",
			yaml:     "id: SC-X\nsteps:\n  - action: inject\n    core: 16\n    register: 0\n    data: \"01\"\n",
			wantStep: 1,
		},
		{
			name:     "BadPacketOp",
			yaml:     "id: SC-X\nsteps:\n  - action: expect_packet\n    op: mask\n    core: 0\n    register: 0\n",
			wantStep: 1,
		},
		{
			name:     "ReadExpectationWithData",
			yaml:     "id: SC-X\nsteps:\n  - action: expect_packet\n    op: read\n    core: 0\n    register: 0\n    data: \"01\"\n",
			wantStep: 1,
		},
		{
			name:     "WaitWithoutDuration",
			yaml:     "id: SC-X\nsteps:\n  - action: wait\n",
			wantStep: 1,
		},
		{
			name:     "SecondStepBad",
			yaml:     "id: SC-X\nsteps:\n  - action: wait\n    duration: 1ms\n  - action: wait\n    duration: soon\n",
			wantStep: 2,
		},
		{
			name: "BadPresetCore",
			yaml: "id: SC-X\nboard:\n  registers:\n    - core: 99\n      register: 0\n      data: \"01\"\nsteps:\n  - action: wait\n    duration: 1ms\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.ParseScenario([]byte(tt.yaml))
			if err == nil {
				t.Fatal("ParseScenario accepted a bad scenario")
			}
			var le *loader.LoadError
			if !errors.As(err, &le) {
				t.Fatalf("error type = %T, want *LoadError", err)
			}
			if le.Step != tt.wantStep {
				t.Errorf("error step = %d, want %d (%v)", le.Step, tt.wantStep, le)
			}
		})
	}
}

func TestStepDataBytes(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []byte
	}{
		{name: "Compact", data: "dead", want: []byte{0xDE, 0xAD}},
		{name: "Spaced", data: "de ad be ef", want: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{name: "SingleByte", data: "07", want: []byte{0x07}},
		{name: "Empty", data: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := loader.Step{Data: tt.data}
			got, err := step.DataBytes()
			if err != nil {
				t.Fatalf("DataBytes(%q): %v", tt.data, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("DataBytes(%q) = % x, want % x", tt.data, got, tt.want)
			}
		})
	}

	step := loader.Step{Data: "abc"}
	if _, err := step.DataBytes(); err == nil {
		t.Error("DataBytes accepted an odd-length payload")
	}
}

func TestLoadScenarioFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "get.yaml")
	content := "id: SC-FILE-001\nsteps:\n  - action: command\n    line: pclist\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sc, err := loader.LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.ID != "SC-FILE-001" {
		t.Errorf("ID = %q, want SC-FILE-001", sc.ID)
	}

	_, err = loader.LoadScenario(filepath.Join(dir, "missing.yaml"))
	var le *loader.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("missing file error type = %T, want *LoadError", err)
	}
	if le.File == "" {
		t.Error("missing file error carries no path")
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b_second.yaml": "id: SC-B\nsteps:\n  - action: command\n    line: pclist\n",
		"a_first.yml":   "id: SC-A\nsteps:\n  - action: command\n    line: pclist\n",
		"notes.txt":     "not a scenario",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	scenarios, err := loader.LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("loaded %d scenarios, want 2", len(scenarios))
	}
	if scenarios[0].ID != "SC-A" || scenarios[1].ID != "SC-B" {
		t.Errorf("order = %s, %s, want SC-A, SC-B", scenarios[0].ID, scenarios[1].ID)
	}
}

func TestLoadErrorMessage(t *testing.T) {
	le := &loader.LoadError{File: "x.yaml", Step: 3, Message: "bad data", Cause: errors.New("odd length")}
	want := "x.yaml: step 3: bad data: odd length"
	if got := le.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &loader.LoadError{Message: "scenario ID is required"}
	if got := bare.Error(); got != "scenario ID is required" {
		t.Errorf("Error() = %q, want bare message", got)
	}
}
