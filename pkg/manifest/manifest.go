// Package manifest maps the driver IDs a board's enumerator reports to
// the driver names that serve them. A built-in table covers the stock
// peripherals; a TOML manifest file can rename, extend, or disable
// entries for custom FPGA builds.
package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Stock driver IDs. The enumerator ROM stores one 16 bit ID per core;
// zero marks an empty core.
var defaultDrivers = map[uint16]string{
	0x0001: "cmods7",
	0x0002: "runber",
	0x0010: "cvcc",
	0x0011: "rcc8",
	0x0012: "dgspi",
	0x0013: "patgen64",
	0x0014: "ps2",
	0x0015: "sndgen",
	0x0016: "vgaterm",
}

// Manifest is one board's driver ID table.
type Manifest struct {
	// Name labels the manifest in logs. Empty for the built-in table.
	Name string

	drivers map[uint16]string
}

// fileManifest is the TOML shape of a manifest file:
//
//	name = "bench-rig"
//	[drivers]
//	0x0020 = "cvcc"
//	0x0012 = ""      # disable auto-load of the stock ID
type fileManifest struct {
	Name    string            `toml:"name"`
	Drivers map[string]string `toml:"drivers"`
}

// Default returns the built-in driver table.
func Default() *Manifest {
	m := &Manifest{drivers: make(map[uint16]string, len(defaultDrivers))}
	for id, name := range defaultDrivers {
		m.drivers[id] = name
	}
	return m
}

// Load reads a manifest file and overlays it on the built-in table.
// Keys are driver IDs in decimal or 0x hex; an empty driver name
// removes the mapping so the core is left unloaded.
func Load(path string) (*Manifest, error) {
	m := Default()

	var raw fileManifest
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	if meta.IsDefined("name") {
		m.Name = strings.TrimSpace(raw.Name)
	}

	for key, driver := range raw.Drivers {
		id, err := parseID(key)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		driver = strings.TrimSpace(driver)
		if driver == "" {
			delete(m.drivers, id)
			continue
		}
		m.drivers[id] = driver
	}

	return m, nil
}

func parseID(key string) (uint16, error) {
	id, err := strconv.ParseUint(key, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad driver ID %q: %w", key, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("driver ID 0 marks an empty core and cannot be mapped")
	}
	return uint16(id), nil
}

// Driver returns the driver name mapped to an enumerator ID.
func (m *Manifest) Driver(id uint16) (string, bool) {
	name, ok := m.drivers[id]
	return name, ok
}

// IDs returns the mapped driver IDs in ascending order.
func (m *Manifest) IDs() []uint16 {
	ids := make([]uint16, 0, len(m.drivers))
	for id := range m.drivers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
