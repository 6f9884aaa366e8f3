package logger

import "github.com/rs/zerolog"

// Logger is a component-scoped logger. Every event carries a "component"
// field so transport chatter can be filtered from the poll loop's.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
}

type componentLogger struct {
	name string
}

// For returns a Logger tagging events with the given component name. The
// returned logger follows later Init calls.
func For(component string) Logger {
	return componentLogger{name: component}
}

func (c componentLogger) tag(e *zerolog.Event) *LogEvent {
	return &LogEvent{e.Str("component", c.name)}
}

func (c componentLogger) Debug() *LogEvent { return c.tag(log.Debug()) }
func (c componentLogger) Info() *LogEvent  { return c.tag(log.Info()) }
func (c componentLogger) Warn() *LogEvent  { return c.tag(log.Warn()) }
func (c componentLogger) Error() *LogEvent { return c.tag(log.Error()) }
