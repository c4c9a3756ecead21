package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/perilink/perilink-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Slots             map[int]*SlotStats
	Timeouts          int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single client session.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Commands  int
}

// SlotStats holds statistics for a single peripheral slot.
type SlotStats struct {
	Events    int
	Resources map[string]int
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		Slots:             make(map[int]*SlotStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		// Track session stats
		if event.SessionID != "" {
			sess, ok := stats.Sessions[event.SessionID]
			if !ok {
				sess = &SessionStats{
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
				}
				stats.Sessions[event.SessionID] = sess
			}
			sess.Events++
			if event.Timestamp.After(sess.LastSeen) {
				sess.LastSeen = event.Timestamp
			}
			if event.Command != nil && event.Direction == log.DirectionIn {
				sess.Commands++
			}
		}

		// Track slot activity
		if event.Slot != nil {
			slot, ok := stats.Slots[*event.Slot]
			if !ok {
				slot = &SlotStats{Resources: make(map[string]int)}
				stats.Slots[*event.Slot] = slot
			}
			slot.Events++
			if event.Resource != "" {
				slot.Resources[event.Resource]++
			}
		}

		// Count timeouts and errors
		if event.Timeout != nil {
			stats.Timeouts++
		}
		if event.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Perilink Capture Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by layer
	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerEngine, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Events by category
	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryPacket, log.CategoryCommand, log.CategoryState, log.CategoryTimeout, log.CategoryBroadcast, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Events by direction
	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Sessions
	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		// Sort by first seen time
		type sessInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, %d commands, duration %s\n",
				shortenSessionID(s.id), s.stats.Events, s.stats.Commands, duration)
		}
	}

	// Slot activity
	if len(stats.Slots) > 0 {
		slotIDs := make([]int, 0, len(stats.Slots))
		for id := range stats.Slots {
			slotIDs = append(slotIDs, id)
		}
		sort.Ints(slotIDs)

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Slot Activity:")
		for _, id := range slotIDs {
			slot := stats.Slots[id]
			fmt.Fprintf(w, "  Slot %d: %d events\n", id, slot.Events)
			if len(slot.Resources) > 0 {
				names := make([]string, 0, len(slot.Resources))
				for name := range slot.Resources {
					names = append(names, name)
				}
				sort.Strings(names)
				parts := make([]string, 0, len(names))
				for _, name := range names {
					parts = append(parts, fmt.Sprintf("%s (%d)", name, slot.Resources[name]))
				}
				fmt.Fprintf(w, "          %s\n", strings.Join(parts, ", "))
			}
		}
	}

	// Timeouts and errors
	if stats.Timeouts > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Timeouts: %d\n", stats.Timeouts)
	}
	if stats.Errors > 0 {
		if stats.Timeouts == 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
