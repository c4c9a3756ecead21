package log

// Logger receives protocol capture events. The engine loop calls Log
// inline, so implementations must be quick and thread-safe; anything
// slow belongs behind a queue.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards every event. The zero value is ready to use,
// for code paths where capture is disabled.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
