// Package wire defines the register packet format exchanged with an FPGA
// board over the byte-oriented peripheral link.
//
// Every packet is a fixed 4-byte header followed by up to 64 data bytes:
//
//	cmd    1 byte   operation bits OR'd with addressing bits
//	core   1 byte   target peripheral instance id (0-15)
//	reg    1 byte   starting register address
//	count  1 byte   number of data bytes (0-64)
//
// # Direction and payload
//
// Host to board, a Read request is the bare header (count says how many
// registers to read back) and a Write request carries count data bytes.
// Board to host, every packet carries count data bytes: a read reply and
// an autosend update carry register contents, and a write acknowledgment
// echoes the bytes that were written.
//
// # Correlation
//
// The protocol has no transaction identifiers. A reply is matched to its
// request by shape alone: the reply kind (write ack, read reply, or
// autosend) together with the register and count fields. Packet.Shape
// produces the correlation key used by the pending-request supervisor.
//
// # Classification
//
// An inbound packet whose addressing bits mark it as auto-data is an
// unsolicited autosend update. Otherwise a write operation is a write
// acknowledgment and a read operation is a read reply.
package wire
