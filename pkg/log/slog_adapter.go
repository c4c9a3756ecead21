package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes capture events to an slog.Logger.
// Useful for development when you want to watch board traffic in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("board_id", event.BoardID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	// Add optional identifiers
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.Slot != nil {
		attrs = append(attrs, slog.Int("slot", *event.Slot))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}

	// Add type-specific attributes
	switch {
	case event.Raw != nil:
		attrs = append(attrs,
			slog.Int("size", event.Raw.Size),
			slog.String("data", hex.EncodeToString(event.Raw.Data)),
		)
	case event.Packet != nil:
		attrs = append(attrs,
			slog.String("op", event.Packet.Op.String()),
			slog.String("addr", event.Packet.Addr.String()),
			slog.Uint64("core", uint64(event.Packet.Core)),
			slog.Uint64("register", uint64(event.Packet.Register)),
			slog.Uint64("count", uint64(event.Packet.Count)),
		)
		if len(event.Packet.Data) > 0 {
			attrs = append(attrs, slog.String("data", hex.EncodeToString(event.Packet.Data)))
		}
		if event.Packet.Kind != nil {
			attrs = append(attrs, slog.String("kind", event.Packet.Kind.String()))
		}
	case event.Command != nil:
		attrs = append(attrs, slog.String("line", event.Command.Line))
		if event.Command.Verb != "" {
			attrs = append(attrs, slog.String("verb", event.Command.Verb))
		}
	case event.Timeout != nil:
		attrs = append(attrs,
			slog.Uint64("register", uint64(event.Timeout.Register)),
			slog.Uint64("count", uint64(event.Timeout.Count)),
			slog.Duration("waited", event.Timeout.Waited),
		)
	case event.Broadcast != nil:
		attrs = append(attrs,
			slog.Uint64("key", uint64(event.Broadcast.Key)),
			slog.Int("subscribers", event.Broadcast.Subscribers),
		)
		if event.Broadcast.Dropped > 0 {
			attrs = append(attrs, slog.Int("dropped", event.Broadcast.Dropped))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "capture", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
