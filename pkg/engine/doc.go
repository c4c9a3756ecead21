// Package engine implements the per-board dispatch loop that connects
// client sessions to peripheral hardware.
//
// # Architecture
//
// One Engine drives one board. All board state, the slot table, the
// resources, the session locks, belongs to a single event-loop
// goroutine. Sessions, the transport reader, and watchdog timers are
// producers posting onto the loop's channels; nothing else touches
// the tables:
//
//	┌──────────┐  requests   ┌────────────┐  packets   ┌───────────┐
//	│ sessions │────────────▶│ event loop │───────────▶│ transport │
//	│          │◀────────────│            │◀───────────│           │
//	└──────────┘  replies    └────────────┘  inbound   └───────────┘
//	                           ▲
//	                           │ expiries
//	                         watchdogs
//
// # Dispatch
//
// Peripheral drivers are tables of ResourceSpec, not code with its own
// concurrency: each spec names a register window, capability flags,
// and parse/format functions. The loop interprets these tables. A read
// request locks the resource to the issuing session, arms a watchdog,
// and sends a read packet; the reply is formatted and delivered to the
// lock holder. A write parses the value, records it as the requested
// state, and sends a write packet whose acknowledgment promotes the
// value to confirmed. Unsolicited autosend packets fan out to the
// subscribed sessions of the matching resource.
//
// # Failure surface
//
// An unanswered request fires its watchdog after the ack timeout: the
// loop releases the session lock, writes ERROR 010 to the waiting
// session, and emits a diagnostic. A full transmit queue rejects the
// request synchronously with ERROR 011. Inbound packets matching no
// outstanding request and no broadcast resource are logged as protocol
// mismatches and dropped.
package engine
