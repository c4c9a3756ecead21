// Package drivers holds the peripheral driver tables the daemon can
// load into board slots.
//
// Each driver is a named factory producing an engine.Driver: an
// identity plus a table of resource specs with register windows,
// capability flags, and the parse/format grammar of each resource.
// Driver files register their factory in init, so importing this
// package for its side effects makes the whole set available to
// pcload by name.
//
// The grammars follow the peripheral hardware: values are the exact
// text a client types after pcset or pcget, and reply lines are what
// the board state formats back. Parse and Format run on the engine
// loop, so drivers that keep state between calls do so in plain
// struct fields without locking.
package drivers
