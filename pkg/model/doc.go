// Package model implements the peripheral resource data model.
//
// # Hierarchy
//
// A daemon drives one or more boards, each a 2-level hierarchy:
//
//	Board > Slot > Resource
//
// A Slot is one numbered position on a board holding a peripheral
// driver instance, bound to one FPGA core id. Resources are the named,
// user-visible capabilities of that peripheral:
//
//	Board (cmods7 demo)
//	├── Slot 0 (cmods7, core 0)
//	│   ├── buttons
//	│   ├── rgb
//	│   └── drivlist
//	└── Slot 1 (dgspi, core 1)
//	    ├── data
//	    └── config
//
// # Capabilities
//
// Every resource declares what UI access it permits:
//   - Readable: pcget is allowed
//   - Writable: pcset is allowed
//   - Broadcast: pccat is allowed (unsolicited updates stream out)
//
// Broadcast and Writable are mutually exclusive: a resource either
// reports hardware state or accepts configuration, never both ways at
// once through the same name.
//
// # Protocol state
//
// Each resource carries the engine's per-resource mutable state: the
// broadcast key (non-zero while at least one session is subscribed),
// the session lock (the single session awaiting a reply), and the
// requested/confirmed value pair. Requested is what the host last
// accepted locally; confirmed is what the board last acknowledged.
//
// # Ownership
//
// Resources and slots are owned by their board's event loop goroutine,
// which serializes all access. The types here carry no locks of their
// own.
package model
