package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestCaptureFile(t *testing.T, events []Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test capture: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, reader *Reader) []Event {
	t.Helper()
	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}
	return read
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-2", Direction: DirectionOut, Layer: LayerWire, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-3", Direction: DirectionIn, Layer: LayerEngine, Category: CategoryState},
	}

	path := createTestCaptureFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)

	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}

	// Verify order
	if read[0].BoardID != "board-1" {
		t.Errorf("first event BoardID = %q, want %q", read[0].BoardID, "board-1")
	}
	if read[2].BoardID != "board-3" {
		t.Errorf("last event BoardID = %q, want %q", read[2].BoardID, "board-3")
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.plog")

	// Create empty file
	logger, _ := NewFileLogger(path)
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, event=%+v", err, event)
	}
}

func TestReaderFilterByBoardID(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), BoardID: "board-A", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-B", Direction: DirectionOut, Layer: LayerWire, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-A", Direction: DirectionIn, Layer: LayerEngine, Category: CategoryState},
		{Timestamp: time.Now(), BoardID: "board-C", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryPacket},
	}

	path := createTestCaptureFile(t, events)

	filter := Filter{BoardID: "board-A"}
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)

	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}

	for _, e := range read {
		if e.BoardID != "board-A" {
			t.Errorf("event has BoardID=%q, want %q", e.BoardID, "board-A")
		}
	}
}

func TestReaderFilterByLayer(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionIn, Layer: LayerWire, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionOut, Layer: LayerSession, Category: CategoryCommand},
	}

	path := createTestCaptureFile(t, events)

	layer := LayerWire
	filter := Filter{Layer: &layer}
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)

	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}

	for _, e := range read {
		if e.Layer != LayerWire {
			t.Errorf("event has Layer=%v, want %v", e.Layer, LayerWire)
		}
	}
}

func TestReaderFilterByTimeRange(t *testing.T) {
	baseTime := time.Date(2026, 8, 11, 10, 0, 0, 0, time.UTC)

	events := []Event{
		{Timestamp: baseTime.Add(-1 * time.Hour), BoardID: "board-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: baseTime, BoardID: "board-2", Direction: DirectionOut, Layer: LayerWire, Category: CategoryPacket},
		{Timestamp: baseTime.Add(30 * time.Minute), BoardID: "board-3", Direction: DirectionIn, Layer: LayerEngine, Category: CategoryState},
		{Timestamp: baseTime.Add(2 * time.Hour), BoardID: "board-4", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryPacket},
	}

	path := createTestCaptureFile(t, events)

	start := baseTime.Add(-5 * time.Minute)
	end := baseTime.Add(1 * time.Hour)
	filter := Filter{
		TimeStart: &start,
		TimeEnd:   &end,
	}
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)

	if len(read) != 2 {
		t.Fatalf("got %d events, want 2 (events within time range)", len(read))
	}

	// Verify it's the middle two events
	if read[0].BoardID != "board-2" {
		t.Errorf("first event BoardID = %q, want %q", read[0].BoardID, "board-2")
	}
	if read[1].BoardID != "board-3" {
		t.Errorf("second event BoardID = %q, want %q", read[1].BoardID, "board-3")
	}
}

func TestReaderFilterBySlotAndResource(t *testing.T) {
	slot1 := 1
	slot2 := 2

	events := []Event{
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryPacket, Slot: &slot1, Resource: "rgb"},
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryPacket, Slot: &slot2, Resource: "buttons"},
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionIn, Layer: LayerWire, Category: CategoryPacket, Slot: &slot1, Resource: "config"},
		{Timestamp: time.Now(), BoardID: "board-1", Direction: DirectionIn, Layer: LayerEngine, Category: CategoryTimeout, Slot: &slot1, Resource: "rgb"},
	}

	path := createTestCaptureFile(t, events)

	filter := Filter{Slot: &slot1, Resource: "rgb"}
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)

	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}

	for _, e := range read {
		if e.Slot == nil || *e.Slot != slot1 {
			t.Errorf("event has Slot=%v, want %d", e.Slot, slot1)
		}
		if e.Resource != "rgb" {
			t.Errorf("event has Resource=%q, want %q", e.Resource, "rgb")
		}
	}
}

func TestReaderCombinedFilters(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), BoardID: "board-A", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-A", Direction: DirectionOut, Layer: LayerWire, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-B", Direction: DirectionIn, Layer: LayerWire, Category: CategoryPacket},
		{Timestamp: time.Now(), BoardID: "board-A", Direction: DirectionIn, Layer: LayerWire, Category: CategoryPacket},
	}

	path := createTestCaptureFile(t, events)

	layer := LayerWire
	dir := DirectionIn
	filter := Filter{
		BoardID:   "board-A",
		Layer:     &layer,
		Direction: &dir,
	}
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)

	// Only the last event matches all criteria
	if len(read) != 1 {
		t.Fatalf("got %d events, want 1", len(read))
	}

	if read[0].BoardID != "board-A" || read[0].Layer != LayerWire || read[0].Direction != DirectionIn {
		t.Error("event doesn't match all filter criteria")
	}
}
