// Package transport provides the board link layer.
//
// The transport layer handles:
//   - Serial port access to the board
//   - Packet framing over the raw byte stream
//   - Stream resynchronization after corruption
//   - Link state management and the transmit queue
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│     Peripheral Packets         │
//	├────────────────────────────────┤
//	│    4-byte Header Framing       │
//	├────────────────────────────────┤
//	│      Serial 8N1 @ 115200       │
//	├────────────────────────────────┤
//	│        USB CDC / FTDI          │
//	└────────────────────────────────┘
//
// # Framing
//
// Packets carry no length prefix. The header itself says how many data
// bytes follow: every board-to-host packet is a 4-byte header plus
// exactly count payload bytes. When header validation fails the reader
// discards one byte at a time until the stream parses again, so a burst
// of line noise costs at most a few packets.
//
// # Transmit Queue
//
// Sends go through a bounded queue drained by a single writer goroutine.
// When the queue is full Send fails fast with ErrTxFull so callers can
// surface back-pressure to clients instead of stalling the dispatch loop.
package transport
