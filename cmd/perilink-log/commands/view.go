// Package commands implements the perilink-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Slot      *int
	Resource  string
}

// matches returns true if the event passes the view filter.
func (f *ViewFilter) matches(event log.Event) bool {
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.Slot != nil && (event.Slot == nil || *event.Slot != *f.Slot) {
		return false
	}
	if f.Resource != "" && event.Resource != f.Resource {
		return false
	}
	return true
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [board] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	dir := event.Direction.String()

	fmt.Fprintf(w, "%s [%s] %-3s %s %s\n",
		ts, event.BoardID, dir, event.Layer.String(), typeLabel(event))

	if event.SessionID != "" {
		fmt.Fprintf(w, "  Session: %s\n", shortenSessionID(event.SessionID))
	}
	if event.Slot != nil {
		fmt.Fprintf(w, "  Slot: %d", *event.Slot)
		if event.Resource != "" {
			fmt.Fprintf(w, "  Resource: %s", event.Resource)
		}
		fmt.Fprintln(w)
	} else if event.Resource != "" {
		fmt.Fprintf(w, "  Resource: %s\n", event.Resource)
	}

	// Type-specific details
	switch {
	case event.Raw != nil:
		formatRawDetails(w, event.Raw)
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.Command != nil:
		formatCommandDetails(w, event.Command)
	case event.Timeout != nil:
		formatTimeoutDetails(w, event.Timeout)
	case event.Broadcast != nil:
		formatBroadcastDetails(w, event.Broadcast)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// typeLabel names the event for the header line. Packets are labelled
// by their inbound classification when one was recorded, by their
// operation otherwise.
func typeLabel(event log.Event) string {
	switch {
	case event.Raw != nil:
		return "Raw"
	case event.Packet != nil:
		if event.Packet.Kind != nil {
			return event.Packet.Kind.String()
		}
		return event.Packet.Op.String()
	case event.Command != nil:
		return "Line"
	case event.Timeout != nil:
		return "Timeout"
	case event.Broadcast != nil:
		return "Broadcast"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatRawDetails writes transport-layer byte details.
func formatRawDetails(w io.Writer, raw *log.RawEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", raw.Size)
	if len(raw.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s\n", hex.EncodeToString(raw.Data))
	}
}

// formatPacketDetails writes decoded packet details.
func formatPacketDetails(w io.Writer, pkt *log.PacketEvent) {
	fmt.Fprintf(w, "  %s %s core %d reg 0x%02x count %d\n",
		pkt.Op.String(), pkt.Addr.String(), pkt.Core, pkt.Register, pkt.Count)
	if len(pkt.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s\n", hex.EncodeToString(pkt.Data))
	}
}

// formatCommandDetails writes session line details.
func formatCommandDetails(w io.Writer, cmd *log.CommandEvent) {
	fmt.Fprintf(w, "  Line: %q\n", cmd.Line)
	if cmd.Verb != "" {
		fmt.Fprintf(w, "  Verb: %s\n", cmd.Verb)
	}
}

// formatTimeoutDetails writes watchdog expiry details.
func formatTimeoutDetails(w io.Writer, to *log.TimeoutEvent) {
	fmt.Fprintf(w, "  Register: 0x%02x count %d\n", to.Register, to.Count)
	fmt.Fprintf(w, "  Waited: %s\n", formatDuration(to.Waited))
}

// formatBroadcastDetails writes fan-out details.
func formatBroadcastDetails(w io.Writer, bc *log.BroadcastEvent) {
	fmt.Fprintf(w, "  Key: 0x%08x\n", bc.Key)
	fmt.Fprintf(w, "  Subscribers: %d", bc.Subscribers)
	if bc.Dropped > 0 {
		fmt.Fprintf(w, " (%d dropped)", bc.Dropped)
	}
	fmt.Fprintln(w)
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer string from a command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseLayer(s)
}

// parseLayer parses a layer string (case-insensitive).
func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "engine":
		return log.LayerEngine, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, engine, or session)", s)
	}
}

// ParseDirectionFlag parses a direction string from a command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseDirection(s)
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from a command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "packet":
		return log.CategoryPacket, nil
	case "command":
		return log.CategoryCommand, nil
	case "state":
		return log.CategoryState, nil
	case "timeout":
		return log.CategoryTimeout, nil
	case "broadcast":
		return log.CategoryBroadcast, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be packet, command, state, timeout, broadcast, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		if !filter.matches(event) {
			continue
		}

		formatEvent(output, event)
	}

	return nil
}
