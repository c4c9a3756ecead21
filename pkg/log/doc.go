// Package log provides structured protocol capture for Perilink.
//
// This package defines the Logger interface and Event types for recording
// board traffic and client activity at every layer (transport, wire, engine,
// session). It is separate from operational logging (slog) - protocol capture
// produces a complete machine-readable trace of every packet, command, and
// timeout for offline debugging and analysis.
//
// # Basic Usage
//
// Applications configure capture by providing a Logger implementation:
//
//	// For development: mirror events to the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to a binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/perilink/board.plog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/perilink/board.plog"),
//	)
//
// # Event Types
//
// Events carry one layer-specific payload:
//   - Transport: raw bytes on the board link (RawEvent)
//   - Wire: decoded packets (PacketEvent)
//   - Engine: acknowledgment timeouts and broadcast fan-out
//     (TimeoutEvent, BroadcastEvent)
//   - Session: client command and reply lines (CommandEvent)
//
// State changes and errors have dedicated payloads usable at any layer.
//
// # File Format
//
// Capture files use CBOR encoding with the .plog extension. The perilink-log
// CLI tool provides viewing, filtering, and export capabilities.
package log
